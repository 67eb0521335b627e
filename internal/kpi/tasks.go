package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/events"
)

const (
	// TypeCalculateMonthly is the asynq task type running the calculator.
	TypeCalculateMonthly = "kpi:calculate_monthly"
	// QueueName is the asynq queue KPI tasks are sent to.
	QueueName = "kpi"
)

// CalculatePayload selects the period and, optionally, one sale user. A zero
// period means the month before the one the task runs in. Withdraw, honoured
// only with a sale user, removes a commission the month no longer earns.
type CalculatePayload struct {
	Year       int    `json:"year,omitempty"`
	Month      int    `json:"month,omitempty"`
	SaleUserID *int64 `json:"saleUserId,omitempty"`
	Withdraw   bool   `json:"withdraw,omitempty"`
}

// NewCalculateTask builds a calculation task on the KPI queue.
func NewCalculateTask(p CalculatePayload, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode kpi task: %w", err)
	}
	base := []asynq.Option{asynq.Queue(QueueName), asynq.MaxRetry(5), asynq.Timeout(10 * time.Minute)}
	return asynq.NewTask(TypeCalculateMonthly, data, append(base, opts...)...), nil
}

// PreviousMonth returns the year and month before the one containing now.
func PreviousMonth(now time.Time) (int, int) {
	y, m, _ := now.UTC().Date()
	prev := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}

// HandleCalculateTask runs the calculator for a task. Requests that can never
// succeed are not retried.
func (s *Service) HandleCalculateTask(ctx context.Context, t *asynq.Task) error {
	var p CalculatePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode kpi task: %v: %w", err, asynq.SkipRetry)
		}
	}
	if p.Year == 0 || p.Month == 0 {
		p.Year, p.Month = PreviousMonth(s.now())
	}
	var (
		count int
		err   error
	)
	if p.Withdraw && p.SaleUserID != nil {
		var c *Commission
		if c, err = s.RecalculateUser(ctx, *p.SaleUserID, p.Year, p.Month); c != nil {
			count = 1
		}
	} else {
		var results []Commission
		results, err = s.CalculateMonthly(ctx, p.Year, p.Month, p.SaleUserID)
		count = len(results)
	}
	if err != nil {
		switch common.KindOf(err) {
		case common.KindValidation, common.KindNotFound:
			return fmt.Errorf("kpi task %04d-%02d: %v: %w", p.Year, p.Month, err, asynq.SkipRetry)
		}
		return err
	}
	s.Logger.Info().Int("year", p.Year).Int("month", p.Month).Int("commissions", count).Msg("kpi task done")
	return nil
}

// Register wires the KPI task handlers on mux.
func (s *Service) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCalculateMonthly, s.HandleCalculateTask)
}

// TaskEnqueuer submits tasks to the queue.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PaidOrderScheduler reacts to paid or deleted orders. It drops the sale
// user's cached dashboard and, when the order's month has already closed,
// queues a recalculation of that month for the user. The recalculation
// withdraws the commission if the month is left without paid orders.
type PaidOrderScheduler struct {
	Tasks  TaskEnqueuer
	KPI    *Service
	Logger zerolog.Logger
}

type orderEvent struct {
	SaleUserID int64     `json:"saleUserId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Schedule implements events.Scheduler.
func (p PaidOrderScheduler) Schedule(ctx context.Context, event db.DomainEvent) error {
	if p.KPI == nil || (event.Topic != events.TopicOrderPaid && event.Topic != events.TopicOrderDeleted) {
		return nil
	}
	var ev orderEvent
	if err := json.Unmarshal(event.Payload, &ev); err != nil {
		return fmt.Errorf("decode order event: %w", err)
	}
	if ev.SaleUserID <= 0 || ev.Status != "paid" || ev.CreatedAt.IsZero() {
		return nil
	}
	created := ev.CreatedAt.UTC()
	year, month := created.Year(), int(created.Month())

	p.KPI.dropDashboard(ctx, ev.SaleUserID, year, month)

	now := p.KPI.now()
	current, _ := monthBounds(now.Year(), int(now.Month()))
	if p.Tasks == nil || !created.Before(current) {
		return nil
	}
	sale := ev.SaleUserID
	task, err := NewCalculateTask(CalculatePayload{Year: year, Month: month, SaleUserID: &sale, Withdraw: true},
		asynq.TaskID(fmt.Sprintf("kpi:%d:%04d-%02d:%s", sale, year, month, event.ID)))
	if err != nil {
		return err
	}
	if _, err := p.Tasks.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue kpi recalculation: %w", err)
	}
	p.Logger.Info().Int64("sale_user_id", sale).Int("year", year).Int("month", month).
		Str("topic", event.Topic).Msg("kpi recalculation queued")
	return nil
}

// ScheduledCalculateTask is the periodic task that computes the previous month.
func ScheduledCalculateTask() (*asynq.Task, error) {
	return NewCalculateTask(CalculatePayload{})
}
