package service

import (
	"context"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/xid"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}
	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Contact:   strings.TrimSpace(req.Contact),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     req.Email,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	if err := s.check(req); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.purchasing.Create(ctx, req, actorName(ctx))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_create", "purchase_order", po.ID, fmt.Sprintf("status=%s,total=%d,items=%d", po.Status, po.TotalCostCents, len(po.Items)))
	return *po, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListPurchaseOrders(ctx, strings.TrimSpace(status), limit)
}

func (s *Service) SubmitPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := s.purchasing.Submit(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_submit", "purchase_order", po.ID, "")
	return *po, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := s.purchasing.Cancel(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_cancel", "purchase_order", po.ID, "")
	return *po, nil
}

// ReceivePurchaseOrder books a delivery. Without details every outstanding
// unit arrives in good condition; with details only the listed lines move.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderReceiveResponse, error) {
	id = strings.TrimSpace(id)
	if err := s.check(req); err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}

	var (
		resp *domain.PurchaseOrderReceiveResponse
		err  error
	)
	if len(req.Details) == 0 {
		resp, err = s.purchasing.ReceiveFull(ctx, id, actorName(ctx))
	} else {
		resp, err = s.purchasing.ReceivePartial(ctx, id, req.Details, actorName(ctx))
	}
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}

	detail := "status=" + resp.PurchaseOrder.Status
	if resp.Replacement != nil {
		detail += ",replacement=" + resp.Replacement.ID
	}
	s.logAudit(ctx, "purchase_order_receive", "purchase_order", resp.PurchaseOrder.ID, detail)
	return *resp, nil
}
