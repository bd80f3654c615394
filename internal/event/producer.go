package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/motorline/catalog-service/internal/domain"
	pkgkafka "github.com/motorline/catalog-service/pkg/kafka"
)

// Kafka topics for catalog domain events.
const (
	TopicCarCreated    = "catalog.car.created"
	TopicCarUpdated    = "catalog.car.updated"
	TopicCarDeleted    = "catalog.car.deleted"
	TopicReviewAdded   = "catalog.car.review_added"
	TopicReviewUpdated = "catalog.car.review_updated"
	TopicReviewDeleted = "catalog.car.review_deleted"
)

const (
	AggregateTypeCar = "car"
	SourceCatalog    = "catalog-service"
)

// CarEventData is the payload for car lifecycle events.
type CarEventData struct {
	ID       string  `json:"id"`
	Make     string  `json:"make"`
	Model    string  `json:"model"`
	Year     int     `json:"year"`
	Price    int64   `json:"price"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
	Rating   float64 `json:"rating"`
}

// CarDeletedData is the payload for a car.deleted event.
type CarDeletedData struct {
	ID string `json:"id"`
}

// ReviewEventData is the payload for review mutation events. Rating carries
// the parent's recomputed aggregate so downstream consumers never need to
// rederive it.
type ReviewEventData struct {
	CarID    string  `json:"car_id"`
	ReviewID string  `json:"review_id"`
	AuthorID string  `json:"author_id,omitempty"`
	Rating   float64 `json:"rating"`
}

// Producer publishes catalog domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates an event producer for the catalog service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func carData(car *domain.Car) CarEventData {
	return CarEventData{
		ID:       car.ID,
		Make:     car.Make,
		Model:    car.Model,
		Year:     car.Year,
		Price:    car.Price,
		Currency: car.Currency,
		Status:   car.Status,
		Rating:   car.Rating,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeCar, SourceCatalog, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("car_id", aggregateID),
	)

	return nil
}

// PublishCarCreated publishes a car.created event.
func (p *Producer) PublishCarCreated(ctx context.Context, car *domain.Car) error {
	return p.publish(ctx, TopicCarCreated, car.ID, carData(car))
}

// PublishCarUpdated publishes a car.updated event.
func (p *Producer) PublishCarUpdated(ctx context.Context, car *domain.Car) error {
	return p.publish(ctx, TopicCarUpdated, car.ID, carData(car))
}

// PublishCarDeleted publishes a car.deleted event.
func (p *Producer) PublishCarDeleted(ctx context.Context, id string) error {
	return p.publish(ctx, TopicCarDeleted, id, CarDeletedData{ID: id})
}

// PublishReviewAdded publishes a review_added event with the new aggregate
// rating.
func (p *Producer) PublishReviewAdded(ctx context.Context, car *domain.Car, reviewID, authorID string) error {
	return p.publish(ctx, TopicReviewAdded, car.ID, ReviewEventData{
		CarID:    car.ID,
		ReviewID: reviewID,
		AuthorID: authorID,
		Rating:   car.Rating,
	})
}

// PublishReviewUpdated publishes a review_updated event.
func (p *Producer) PublishReviewUpdated(ctx context.Context, car *domain.Car, reviewID string) error {
	return p.publish(ctx, TopicReviewUpdated, car.ID, ReviewEventData{
		CarID:    car.ID,
		ReviewID: reviewID,
		Rating:   car.Rating,
	})
}

// PublishReviewDeleted publishes a review_deleted event.
func (p *Producer) PublishReviewDeleted(ctx context.Context, car *domain.Car, reviewID string) error {
	return p.publish(ctx, TopicReviewDeleted, car.ID, ReviewEventData{
		CarID:    car.ID,
		ReviewID: reviewID,
		Rating:   car.Rating,
	})
}
