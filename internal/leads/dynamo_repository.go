package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// leadRecord is the DynamoDB row shape. Pending and booked fields are kept
// flat so condition expressions can reference them directly.
type leadRecord struct {
	ExternalID       string `dynamodbav:"external_id"`
	ID               string `dynamodbav:"id"`
	Source           string `dynamodbav:"source,omitempty"`
	Status           string `dynamodbav:"status"`
	BotEnabled       bool   `dynamodbav:"bot_enabled"`
	PendingSlotLabel string `dynamodbav:"pending_slot_label,omitempty"`
	PendingSlotStart string `dynamodbav:"pending_slot_start,omitempty"`
	PendingSlotEnd   string `dynamodbav:"pending_slot_end,omitempty"`
	PendingClaimedAt string `dynamodbav:"pending_claimed_at,omitempty"`
	BookedEventID    string `dynamodbav:"booked_event_id,omitempty"`
	BookedSlotLabel  string `dynamodbav:"booked_slot_label,omitempty"`
	BookedSlotStart  string `dynamodbav:"booked_slot_start,omitempty"`
	BookedSlotEnd    string `dynamodbav:"booked_slot_end,omitempty"`
	BookedAt         string `dynamodbav:"booked_at,omitempty"`
	Address          string `dynamodbav:"address,omitempty"`
	Phone            string `dynamodbav:"phone,omitempty"`
	CreatedAt        string `dynamodbav:"created_at"`
	UpdatedAt        string `dynamodbav:"updated_at"`
}

// DynamoRepository stores leads in a DynamoDB table keyed by external_id.
// All mutations are conditional single-row updates; the table is the only
// serialization point the booking protocol relies on.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	now       func() time.Time
}

var _ Repository = (*DynamoRepository)(nil)

// NewDynamoRepository builds a repository backed by the provided client.
func NewDynamoRepository(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoRepository {
	if client == nil {
		panic("leads: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("leads: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the repository time source. Tests only.
func (r *DynamoRepository) WithClock(now func() time.Time) *DynamoRepository {
	if now != nil {
		r.now = now
	}
	return r
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseInstant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (rec *leadRecord) toLead() *Lead {
	lead := &Lead{
		ID:         rec.ID,
		ExternalID: rec.ExternalID,
		Source:     rec.Source,
		Status:     Status(rec.Status),
		BotEnabled: rec.BotEnabled,
		Address:    rec.Address,
		Phone:      rec.Phone,
		CreatedAt:  parseInstant(rec.CreatedAt),
		UpdatedAt:  parseInstant(rec.UpdatedAt),
	}
	if rec.PendingSlotStart != "" {
		lead.Pending = &PendingClaim{
			SlotLabel: rec.PendingSlotLabel,
			SlotStart: parseInstant(rec.PendingSlotStart),
			SlotEnd:   parseInstant(rec.PendingSlotEnd),
			ClaimedAt: parseInstant(rec.PendingClaimedAt),
		}
	}
	if rec.BookedEventID != "" {
		lead.Booked = &Booking{
			EventID:   rec.BookedEventID,
			SlotLabel: rec.BookedSlotLabel,
			SlotStart: parseInstant(rec.BookedSlotStart),
			SlotEnd:   parseInstant(rec.BookedSlotEnd),
			BookedAt:  parseInstant(rec.BookedAt),
		}
	}
	return lead
}

func (r *DynamoRepository) key(externalID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"external_id": &types.AttributeValueMemberS{Value: externalID},
	}
}

// UpsertByExternalID creates the lead row on first contact. An existing row
// is returned untouched.
func (r *DynamoRepository) UpsertByExternalID(ctx context.Context, externalID, source string) (*Lead, error) {
	if externalID == "" {
		return nil, errors.New("leads: external id required")
	}

	now := formatInstant(r.now())
	rec := leadRecord{
		ExternalID: externalID,
		ID:         uuid.NewString(),
		Source:     source,
		Status:     string(StatusActive),
		BotEnabled: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("leads: failed to marshal lead: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(external_id)"),
	})
	if err == nil {
		return rec.toLead(), nil
	}
	if !isConditionalCheckFailed(err) {
		return nil, fmt.Errorf("leads: failed to upsert lead: %w", err)
	}
	// Lost the insert race or the lead already exists; read it back.
	return r.GetByExternalID(ctx, externalID)
}

// GetByExternalID fetches one lead row with a consistent read.
func (r *DynamoRepository) GetByExternalID(ctx context.Context, externalID string) (*Lead, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            r.key(externalID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("leads: failed to load lead: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrLeadNotFound
	}
	var rec leadRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("leads: failed to unmarshal lead: %w", err)
	}
	return rec.toLead(), nil
}

// SetStatus updates the lifecycle status.
func (r *DynamoRepository) SetStatus(ctx context.Context, externalID string, status Status) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 r.key(externalID),
		UpdateExpression:    aws.String("SET #status = :status, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(external_id)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    &types.AttributeValueMemberS{Value: formatInstant(r.now())},
		},
	})
	if isConditionalCheckFailed(err) {
		return ErrLeadNotFound
	}
	if err != nil {
		return fmt.Errorf("leads: failed to set status: %w", err)
	}
	return nil
}

// SetBotEnabled flips the bot flag; false hands the lead to a human.
func (r *DynamoRepository) SetBotEnabled(ctx context.Context, externalID string, enabled bool) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 r.key(externalID),
		UpdateExpression:    aws.String("SET bot_enabled = :enabled, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(external_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":enabled": &types.AttributeValueMemberBOOL{Value: enabled},
			":now":     &types.AttributeValueMemberS{Value: formatInstant(r.now())},
		},
	})
	if isConditionalCheckFailed(err) {
		return ErrLeadNotFound
	}
	if err != nil {
		return fmt.Errorf("leads: failed to set bot flag: %w", err)
	}
	return nil
}

// ClaimPendingSlot applies the optimistic claim. The condition the store
// checks is: no finalized booking, and any existing claim is already past
// the TTL. RFC3339 UTC strings compare lexicographically, so the staleness
// check is a plain string comparison.
func (r *DynamoRepository) ClaimPendingSlot(ctx context.Context, externalID string, claim PendingClaim) (*Lead, bool, error) {
	now := r.now()
	staleBefore := formatInstant(now.Add(-ClaimTTL))

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.key(externalID),
		UpdateExpression: aws.String(
			"SET pending_slot_label = :label, pending_slot_start = :start, pending_slot_end = :end, pending_claimed_at = :claimed, updated_at = :now"),
		ConditionExpression: aws.String(
			"attribute_exists(external_id) AND attribute_not_exists(booked_event_id) AND (attribute_not_exists(pending_claimed_at) OR pending_claimed_at < :stale)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":label":   &types.AttributeValueMemberS{Value: claim.SlotLabel},
			":start":   &types.AttributeValueMemberS{Value: formatInstant(claim.SlotStart)},
			":end":     &types.AttributeValueMemberS{Value: formatInstant(claim.SlotEnd)},
			":claimed": &types.AttributeValueMemberS{Value: formatInstant(now)},
			":stale":   &types.AttributeValueMemberS{Value: staleBefore},
			":now":     &types.AttributeValueMemberS{Value: formatInstant(now)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionalCheckFailed(err) {
		// Race loss: another turn holds a claim or a booking. Not an error;
		// the caller re-reads to find out which.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leads: claim update failed: %w", err)
	}

	var rec leadRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, false, fmt.Errorf("leads: failed to unmarshal claimed lead: %w", err)
	}
	return rec.toLead(), true, nil
}

// ReleasePendingClaim clears the pending fields unconditionally.
func (r *DynamoRepository) ReleasePendingClaim(ctx context.Context, externalID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.key(externalID),
		UpdateExpression: aws.String(
			"REMOVE pending_slot_label, pending_slot_start, pending_slot_end, pending_claimed_at SET updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(external_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: formatInstant(r.now())},
		},
	})
	if isConditionalCheckFailed(err) {
		return ErrLeadNotFound
	}
	if err != nil {
		return fmt.Errorf("leads: failed to release claim: %w", err)
	}
	return nil
}

// FinalizeBooking consumes the pending claim and records the booking in one
// conditional update, so a lead can never hold both.
func (r *DynamoRepository) FinalizeBooking(ctx context.Context, externalID string, booking Booking, address, phone string) (*Lead, error) {
	if booking.EventID == "" {
		return nil, errors.New("leads: booking event id required")
	}
	now := formatInstant(r.now())

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.key(externalID),
		UpdateExpression: aws.String(
			"SET booked_event_id = :event, booked_slot_label = :label, booked_slot_start = :start, booked_slot_end = :end, booked_at = :now, " +
				"address = :address, phone = :phone, #status = :status, updated_at = :now " +
				"REMOVE pending_slot_label, pending_slot_start, pending_slot_end, pending_claimed_at"),
		ConditionExpression: aws.String(
			"attribute_exists(pending_claimed_at) AND attribute_not_exists(booked_event_id)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":event":   &types.AttributeValueMemberS{Value: booking.EventID},
			":label":   &types.AttributeValueMemberS{Value: booking.SlotLabel},
			":start":   &types.AttributeValueMemberS{Value: formatInstant(booking.SlotStart)},
			":end":     &types.AttributeValueMemberS{Value: formatInstant(booking.SlotEnd)},
			":now":     &types.AttributeValueMemberS{Value: now},
			":address": &types.AttributeValueMemberS{Value: address},
			":phone":   &types.AttributeValueMemberS{Value: phone},
			":status":  &types.AttributeValueMemberS{Value: string(StatusBooked)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionalCheckFailed(err) {
		return nil, ErrNoPendingClaim
	}
	if err != nil {
		return nil, fmt.Errorf("leads: finalize update failed: %w", err)
	}

	var rec leadRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, fmt.Errorf("leads: failed to unmarshal finalized lead: %w", err)
	}
	return rec.toLead(), nil
}

func isConditionalCheckFailed(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
