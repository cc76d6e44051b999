package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

func seedType(s *Store, capacity int) uint64 {
	return s.AddTicketType(model.TicketType{EventID: 1, Name: "Regular", QuantityTotal: intPtr(capacity), QuantityAvailable: intPtr(capacity), IsActive: true})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := seedType(s, 3)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx repository.Tx) error {
		if ok, err := tx.DecrementInventory(ctx, id, 2); !ok || err != nil {
			t.Fatalf("DecrementInventory = %v, %v", ok, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx = %v", err)
	}
	s.WithTx(ctx, func(tx repository.Tx) error {
		tt, _ := tx.GetTicketType(ctx, id)
		if *tt.QuantityAvailable != 3 || tt.QuantitySold != 0 {
			t.Fatalf("after rollback available=%d sold=%d", *tt.QuantityAvailable, tt.QuantitySold)
		}
		return nil
	})
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := seedType(s, 3)

	func() {
		defer func() { recover() }()
		s.WithTx(ctx, func(tx repository.Tx) error {
			tx.DecrementInventory(ctx, id, 3)
			panic("handler bug")
		})
	}()
	s.WithTx(ctx, func(tx repository.Tx) error {
		if tt, _ := tx.GetTicketType(ctx, id); *tt.QuantityAvailable != 3 {
			t.Fatalf("available = %d after panic", *tt.QuantityAvailable)
		}
		return nil
	})
}

func TestDecrementInventoryNeverOversells(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := seedType(s, 2)
	unlimited := s.AddTicketType(model.TicketType{EventID: 1, Name: "Free", IsActive: true})

	s.WithTx(ctx, func(tx repository.Tx) error {
		if ok, _ := tx.DecrementInventory(ctx, id, 3); ok {
			t.Fatal("decrement past zero must fail")
		}
		if ok, _ := tx.DecrementInventory(ctx, id, 2); !ok {
			t.Fatal("decrement to zero must succeed")
		}
		if ok, _ := tx.DecrementInventory(ctx, unlimited, 1000); !ok {
			t.Fatal("unlimited types never run out")
		}
		if err := tx.RestoreInventory(ctx, id, 1); err != nil {
			t.Fatalf("RestoreInventory: %v", err)
		}
		tt, _ := tx.GetTicketType(ctx, id)
		if *tt.QuantityAvailable+tt.QuantitySold != *tt.QuantityTotal {
			t.Fatalf("available %d + sold %d != total %d", *tt.QuantityAvailable, tt.QuantitySold, *tt.QuantityTotal)
		}
		return nil
	})
}

func TestPaymentTransitionsAreConditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var id uint64
	s.WithTx(ctx, func(tx repository.Tx) error {
		p := &model.Payment{TransactionID: "TXN-1", Status: model.PaymentStatusPending, CreatedAt: now}
		if err := tx.CreatePayment(ctx, p); err != nil {
			t.Fatalf("CreatePayment: %v", err)
		}
		id = p.ID
		if err := tx.SetPaymentCorrelation(ctx, id, "ws_CO_1", "mr_1"); err != nil {
			t.Fatalf("SetPaymentCorrelation: %v", err)
		}
		if ok, _ := tx.FailPayment(ctx, id, "timeout", now); !ok {
			t.Fatal("pending -> failed must apply")
		}
		if ok, _ := tx.FailPayment(ctx, id, "again", now); ok {
			t.Fatal("failed -> failed must not apply")
		}
		if ok, _ := tx.CompletePayment(ctx, id, "R0", now); ok {
			t.Fatal("failed -> completed must not apply")
		}
		p, err := tx.GetPaymentByCorrelationID(ctx, "ws_CO_1")
		if err != nil || p.ID != id || p.Status != model.PaymentStatusFailed || p.ReceiptNumber != nil {
			t.Fatalf("GetPaymentByCorrelationID = %+v, %v", p, err)
		}

		q := &model.Payment{TransactionID: "TXN-2", Status: model.PaymentStatusPending, CreatedAt: now}
		if err := tx.CreatePayment(ctx, q); err != nil {
			t.Fatalf("CreatePayment: %v", err)
		}
		if ok, _ := tx.CompletePayment(ctx, q.ID, "R1", now); !ok {
			t.Fatal("pending -> completed must apply")
		}
		if ok, _ := tx.CompletePayment(ctx, q.ID, "R2", now); ok {
			t.Fatal("completed -> completed must not apply")
		}
		if ok, _ := tx.FailPayment(ctx, q.ID, "late", now); ok {
			t.Fatal("completed -> failed must not apply")
		}
		q, err = tx.GetPayment(ctx, q.ID)
		if err != nil || q.Status != model.PaymentStatusCompleted || *q.ReceiptNumber != "R1" {
			t.Fatalf("GetPayment = %+v, %v", q, err)
		}
		return nil
	})
}

func TestRefreshTokens(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()
	u := &model.User{Email: "a@example.com", Role: model.RoleAttendee, IsActive: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, &model.User{Email: "a@example.com"}); !errors.Is(err, repository.ErrEmailExists) {
		t.Fatalf("duplicate CreateUser = %v", err)
	}

	s.StoreRefresh(ctx, u.ID, "h1", now.Add(time.Hour))
	s.StoreRefresh(ctx, u.ID, "h2", now.Add(time.Hour))
	if id, err := s.ValidateRefresh(ctx, "h1", now); err != nil || id != u.ID {
		t.Fatalf("ValidateRefresh = %d, %v", id, err)
	}
	if _, err := s.ValidateRefresh(ctx, "h1", now.Add(2*time.Hour)); err == nil {
		t.Fatal("expired refresh token accepted")
	}
	s.RevokeByHash(ctx, "h1")
	if _, err := s.ValidateRefresh(ctx, "h1", now); err == nil {
		t.Fatal("revoked refresh token accepted")
	}
	s.RevokeAllForUser(ctx, u.ID)
	if _, err := s.ValidateRefresh(ctx, "h2", now); err == nil {
		t.Fatal("RevokeAllForUser left a token valid")
	}
}
