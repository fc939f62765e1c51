package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/order-service/domain"
	"github.com/orderflow/fulfillment-system/shared/models"
)

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
// Live orders stay inside their process instance; the repository holds
// the archived snapshots written when an order reaches a terminal
// status.
type PostgresOrderRepository struct {
	db *sqlx.DB
}

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(db *sqlx.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// postgresOrder represents an order snapshot in the database
type postgresOrder struct {
	ID                    string         `db:"id"`
	CustomerID            string         `db:"customer_id"`
	CustomerName          string         `db:"customer_name"`
	CustomerEmail         string         `db:"customer_email"`
	Items                 []byte         `db:"items"`
	TotalAmount           int64          `db:"total_amount"`
	Currency              string         `db:"currency"`
	ShippingAddress       []byte         `db:"shipping_address"`
	PaymentMethod         string         `db:"payment_method"`
	Status                string         `db:"status"`
	CurrentStep           string         `db:"current_step"`
	StepIndex             int            `db:"step_index"`
	PaymentID             sql.NullString `db:"payment_id"`
	ReservationIDs        pq.StringArray `db:"reservation_ids"`
	TrackingNumber        sql.NullString `db:"tracking_number"`
	FulfillmentInstanceID sql.NullString `db:"fulfillment_instance_id"`
	CancellationReason    sql.NullString `db:"cancellation_reason"`
	ErrorDetail           sql.NullString `db:"error_detail"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
	Version               int            `db:"version"`
}

// Save upserts an order snapshot
func (r *PostgresOrderRepository) Save(ctx context.Context, order *domain.OrderRecord) error {
	query := `
		INSERT INTO orders (
			id, customer_id, customer_name, customer_email, items,
			total_amount, currency, shipping_address, payment_method,
			status, current_step, step_index, payment_id, reservation_ids,
			tracking_number, fulfillment_instance_id, cancellation_reason,
			error_detail, created_at, updated_at, version
		) VALUES (
			:id, :customer_id, :customer_name, :customer_email, :items,
			:total_amount, :currency, :shipping_address, :payment_method,
			:status, :current_step, :step_index, :payment_id, :reservation_ids,
			:tracking_number, :fulfillment_instance_id, :cancellation_reason,
			:error_detail, :created_at, :updated_at, :version
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			step_index = EXCLUDED.step_index,
			payment_id = EXCLUDED.payment_id,
			reservation_ids = EXCLUDED.reservation_ids,
			tracking_number = EXCLUDED.tracking_number,
			fulfillment_instance_id = EXCLUDED.fulfillment_instance_id,
			cancellation_reason = EXCLUDED.cancellation_reason,
			error_detail = EXCLUDED.error_detail,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version`

	pgOrder, err := r.toPostgres(order)
	if err != nil {
		return err
	}

	if _, err := r.db.NamedExecContext(ctx, query, pgOrder); err != nil {
		return errors.Wrap(err, "failed to save order")
	}
	return nil
}

// FindByID finds an archived order by ID
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.OrderRecord, error) {
	query := `
		SELECT id, customer_id, customer_name, customer_email, items,
			   total_amount, currency, shipping_address, payment_method,
			   status, current_step, step_index, payment_id, reservation_ids,
			   tracking_number, fulfillment_instance_id, cancellation_reason,
			   error_detail, created_at, updated_at, version
		FROM orders
		WHERE id = $1`

	var pgOrder postgresOrder
	if err := r.db.GetContext(ctx, &pgOrder, query, id.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find order")
	}

	return r.toDomain(&pgOrder)
}

// toPostgres converts a domain record to the postgres model
func (r *PostgresOrderRepository) toPostgres(order *domain.OrderRecord) (*postgresOrder, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode order items")
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode shipping address")
	}

	return &postgresOrder{
		ID:                    order.OrderID.String(),
		CustomerID:            order.Customer.ID.String(),
		CustomerName:          order.Customer.Name,
		CustomerEmail:         order.Customer.Email,
		Items:                 items,
		TotalAmount:           order.TotalAmount.Amount,
		Currency:              order.TotalAmount.Currency,
		ShippingAddress:       address,
		PaymentMethod:         order.PaymentMethod,
		Status:                string(order.Status),
		CurrentStep:           order.CurrentStep,
		StepIndex:             order.StepIndex,
		PaymentID:             nullString(order.PaymentID),
		ReservationIDs:        pq.StringArray(order.ReservationIDs),
		TrackingNumber:        nullString(order.TrackingNumber),
		FulfillmentInstanceID: nullString(order.FulfillmentInstanceID.String()),
		CancellationReason:    nullString(order.CancellationReason),
		ErrorDetail:           nullString(order.ErrorDetail),
		CreatedAt:             order.Timestamps.CreatedAt,
		UpdatedAt:             order.Timestamps.UpdatedAt,
		Version:               order.Version.Value,
	}, nil
}

// toDomain converts a postgres model to a domain record
func (r *PostgresOrderRepository) toDomain(pgOrder *postgresOrder) (*domain.OrderRecord, error) {
	orderID, err := models.NewID(pgOrder.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order ID")
	}
	customerID, err := models.NewID(pgOrder.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid customer ID")
	}

	var items []models.LineItem
	if err := json.Unmarshal(pgOrder.Items, &items); err != nil {
		return nil, errors.Wrap(err, "failed to decode order items")
	}
	var address models.Address
	if err := json.Unmarshal(pgOrder.ShippingAddress, &address); err != nil {
		return nil, errors.Wrap(err, "failed to decode shipping address")
	}

	var fulfillmentID models.ID
	if pgOrder.FulfillmentInstanceID.Valid && pgOrder.FulfillmentInstanceID.String != "" {
		fulfillmentID, err = models.NewID(pgOrder.FulfillmentInstanceID.String)
		if err != nil {
			return nil, errors.Wrap(err, "invalid fulfillment instance ID")
		}
	}

	return &domain.OrderRecord{
		OrderID: orderID,
		Customer: models.Customer{
			ID:    customerID,
			Name:  pgOrder.CustomerName,
			Email: pgOrder.CustomerEmail,
		},
		Items:                 items,
		TotalAmount:           models.NewMoney(pgOrder.TotalAmount, pgOrder.Currency),
		ShippingAddress:       address,
		PaymentMethod:         pgOrder.PaymentMethod,
		Status:                domain.OrderStatus(pgOrder.Status),
		CurrentStep:           pgOrder.CurrentStep,
		StepIndex:             pgOrder.StepIndex,
		PaymentID:             pgOrder.PaymentID.String,
		ReservationIDs:        []string(pgOrder.ReservationIDs),
		TrackingNumber:        pgOrder.TrackingNumber.String,
		FulfillmentInstanceID: fulfillmentID,
		CancellationReason:    pgOrder.CancellationReason.String,
		ErrorDetail:           pgOrder.ErrorDetail.String,
		Timestamps: models.Timestamps{
			CreatedAt: pgOrder.CreatedAt,
			UpdatedAt: pgOrder.UpdatedAt,
		},
		Version: models.Version{Value: pgOrder.Version},
	}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
