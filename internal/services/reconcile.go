package services

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaymentReconciler applies confirmed payment outcomes to orders. Both the
// webhook and the verification endpoint go through it, so each transition
// happens at most once.
type PaymentReconciler struct {
	tx        TxRunner
	orders    OrderRepository
	carts     CartRepository
	catalog   CatalogRepository
	notifier  Notifier
	publisher StatusPublisher
	pricer    *Pricer
}

// NewPaymentReconciler creates a new payment reconciler
func NewPaymentReconciler(
	tx TxRunner,
	orders OrderRepository,
	carts CartRepository,
	catalog CatalogRepository,
	notifier Notifier,
	publisher StatusPublisher,
	pricer *Pricer,
) *PaymentReconciler {
	return &PaymentReconciler{
		tx:        tx,
		orders:    orders,
		carts:     carts,
		catalog:   catalog,
		notifier:  notifier,
		publisher: publisher,
		pricer:    pricer,
	}
}

// Complete moves a pending order to completed, empties its source cart and
// sends the confirmation. Replays of an already completed order only retry
// an email that was never sent.
func (r *PaymentReconciler) Complete(ctx context.Context, order *models.Order) (models.WebhookOutcome, error) {
	transitioned := false
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := r.orders.TransitionStatus(ctx, order.ID, models.PaymentPending, models.PaymentCompleted)
		if err != nil {
			return fmt.Errorf("failed to complete order: %w", err)
		}
		if !ok {
			return nil
		}
		transitioned = true

		if !order.CartID.Valid {
			return nil
		}
		cartID := int(order.CartID.Int64)
		if _, err := r.carts.LockCart(ctx, cartID); err != nil {
			if errors.Is(err, models.ErrCartNotFound) {
				return nil
			}
			return err
		}
		if err := r.carts.DeleteAllLines(ctx, cartID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return r.carts.UpdateTotal(ctx, cartID, decimal.Zero, order.Country)
	})
	if err != nil {
		return "", err
	}

	current, err := r.orders.GetByReference(ctx, order.Reference)
	if err != nil {
		return "", err
	}

	if !transitioned {
		switch current.PaymentStatus {
		case models.PaymentCompleted:
			if !current.EmailSent {
				r.sendConfirmation(ctx, current)
			}
			return models.OutcomeAlreadyProcessed, nil
		default:
			log.Warn().
				Str("reference", order.Reference).
				Str("status", string(current.PaymentStatus)).
				Msg("payment success received for an order that is no longer pending")
			return models.OutcomeIgnored, nil
		}
	}

	log.Info().
		Str("reference", current.Reference).
		Int("order_id", current.ID).
		Str("total", current.Total.StringFixed(2)).
		Msg("order payment completed")

	r.publish(current)
	r.sendConfirmation(ctx, current)

	if !r.pricer.IsDomestic(current.Country) {
		if err := r.notifier.SendDeliveryFeeQuoteNeeded(ctx, current); err != nil {
			log.Error().Err(err).Str("reference", current.Reference).Msg("failed to send delivery fee quote notice")
		}
	}
	return models.OutcomeProcessed, nil
}

// Fail moves a pending order to failed and returns its stock.
func (r *PaymentReconciler) Fail(ctx context.Context, order *models.Order) (models.WebhookOutcome, error) {
	transitioned := false
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := r.orders.TransitionStatus(ctx, order.ID, models.PaymentPending, models.PaymentFailed)
		if err != nil {
			return fmt.Errorf("failed to fail order: %w", err)
		}
		if !ok {
			return nil
		}
		transitioned = true

		items, err := r.orders.GetItems(ctx, order.ID)
		if err != nil {
			return err
		}
		return r.restock(ctx, items)
	})
	if err != nil {
		return "", err
	}

	if !transitioned {
		current, err := r.orders.GetByReference(ctx, order.Reference)
		if err != nil {
			return "", err
		}
		if current.PaymentStatus == models.PaymentFailed {
			return models.OutcomeAlreadyProcessed, nil
		}
		return models.OutcomeIgnored, nil
	}

	order.PaymentStatus = models.PaymentFailed
	log.Info().Str("reference", order.Reference).Int("order_id", order.ID).Msg("order payment failed, stock restored")
	r.publish(order)
	return models.OutcomeProcessed, nil
}

// MarkDeliveryFeePaid records payment of a delivery-fee quote.
func (r *PaymentReconciler) MarkDeliveryFeePaid(ctx context.Context, order *models.Order) (models.WebhookOutcome, error) {
	ok, err := r.orders.MarkDeliveryFeePaid(ctx, order.ID)
	if err != nil {
		return "", fmt.Errorf("failed to mark delivery fee paid: %w", err)
	}
	if !ok {
		return models.OutcomeAlreadyProcessed, nil
	}

	order.DeliveryFeePaid = true
	log.Info().Str("reference", order.Reference).Msg("delivery fee paid")
	r.publish(order)
	return models.OutcomeProcessed, nil
}

// restock returns every unit the items consumed. A unit that cannot be
// restored aborts the surrounding transaction.
func (r *PaymentReconciler) restock(ctx context.Context, items []models.OrderItem) error {
	var units []models.StockUnit
	for i := range items {
		units = append(units, items[i].StockUnits()...)
	}
	for _, u := range models.MergeStockUnits(units) {
		if err := r.catalog.IncrementStock(ctx, u.VariantID, u.SizeID, u.Quantity); err != nil {
			return fmt.Errorf("failed to restock variant %d size %d: %w", u.VariantID, u.SizeID, err)
		}
	}
	return nil
}

// sendConfirmation claims the email_sent flag and releases it again when the
// send fails so a later replay can retry.
func (r *PaymentReconciler) sendConfirmation(ctx context.Context, order *models.Order) {
	claimed, err := r.orders.ClaimEmailSend(ctx, order.ID)
	if err != nil {
		log.Error().Err(err).Str("reference", order.Reference).Msg("failed to claim confirmation email")
		return
	}
	if !claimed {
		return
	}

	if order.Items == nil {
		items, err := r.orders.GetItems(ctx, order.ID)
		if err != nil && !errors.Is(err, models.ErrOrderNotFound) {
			log.Error().Err(err).Str("reference", order.Reference).Msg("failed to load order items for email")
		}
		order.Items = items
	}

	if err := r.notifier.SendOrderConfirmation(ctx, order); err != nil {
		log.Error().Err(err).Str("reference", order.Reference).Msg("failed to send order confirmation")
		if err := r.orders.ReleaseEmailSend(ctx, order.ID); err != nil {
			log.Error().Err(err).Str("reference", order.Reference).Msg("failed to release confirmation email claim")
		}
		return
	}
	order.EmailSent = true
}

func (r *PaymentReconciler) publish(order *models.Order) {
	if r.publisher != nil {
		r.publisher.Publish(order.StatusUpdate())
	}
}
