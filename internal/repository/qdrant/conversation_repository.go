package qdrant

import (
	"context"
	"fmt"
	"time"

	"mateo-memory-be/internal/entity"
	"mateo-memory-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// ConversationRepository stores turns in a remote Qdrant collection.
// The payload layout matches the collection written by the original
// MATEO backend, so both can read each other's points:
//
//	{document: {user_message, chatbot_response, model, session_id,
//	 timestamp, ...metadata}, conversation_id, session_id, model,
//	 timestamp, metadata}
//
// Reserved document fields are written after the metadata merge, so a
// caller metadata key reusing a reserved name survives inside metadata
// but never shadows the reserved value.
type ConversationRepository struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	timeout        time.Duration
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorSize uint64
	Timeout    time.Duration
}

func NewConversationRepository(cfg Config) (*ConversationRepository, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "mateo_conversations"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ConversationRepository{
		client:         client,
		collectionName: collection,
		vectorSize:     cfg.VectorSize,
		timeout:        timeout,
	}, nil
}

// EnsureCollection creates the collection if it does not exist yet.
// Idempotent; called once at startup.
func (r *ConversationRepository) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	collections, err := r.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == r.collectionName {
			return nil
		}
	}

	err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     r.vectorSize,
			Distance: qdrant.Distance_Cosine,
			OnDisk:   qdrant.PtrOf(true),
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", r.collectionName, err)
	}
	return nil
}

func (r *ConversationRepository) Upsert(ctx context.Context, turn *entity.ConversationTurn) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         []*qdrant.PointStruct{r.turnToPoint(turn)},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point %s: %w", turn.Id, err)
	}
	return nil
}

func (r *ConversationRepository) Search(ctx context.Context, embedding []float32, filter contract.TurnFilter, limit int) ([]*entity.ScoredConversationTurn, error) {
	if limit <= 0 {
		limit = 15
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         r.buildFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search in qdrant: %w", err)
	}

	scored := make([]*entity.ScoredConversationTurn, 0, len(points))
	for _, point := range points {
		turn, err := r.payloadToTurn(point.GetId(), point.GetPayload())
		if err != nil {
			continue
		}
		scored = append(scored, &entity.ScoredConversationTurn{
			Turn:       turn,
			Similarity: float64(point.GetScore()),
		})
	}
	return scored, nil
}

func (r *ConversationRepository) Scroll(ctx context.Context, filter contract.TurnFilter, limit int) ([]*entity.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	points, err := r.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: r.collectionName,
		Filter:         r.buildFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll qdrant: %w", err)
	}

	turns := make([]*entity.ConversationTurn, 0, len(points))
	for _, point := range points {
		turn, err := r.payloadToTurn(point.GetId(), point.GetPayload())
		if err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (r *ConversationRepository) Count(ctx context.Context, filter contract.TurnFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	count, err := r.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.collectionName,
		Filter:         r.buildFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int64(count), nil
}

func (r *ConversationRepository) buildFilter(filter contract.TurnFilter) *qdrant.Filter {
	must := []*qdrant.Condition{fieldMatch("model", filter.Model)}
	if filter.SessionId != "" {
		must = append(must, fieldMatch("session_id", filter.SessionId))
	}
	return &qdrant.Filter{Must: must}
}

func fieldMatch(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func (r *ConversationRepository) turnToPoint(turn *entity.ConversationTurn) *qdrant.PointStruct {
	timestamp := turn.Timestamp.UTC().Format(time.RFC3339)

	document := map[string]*qdrant.Value{}
	for k, v := range turn.Metadata {
		document[k] = anyToValue(v)
	}
	document["user_message"] = stringToValue(turn.UserMessage)
	document["chatbot_response"] = stringToValue(turn.ChatbotResponse)
	document["model"] = stringToValue(turn.Model)
	document["session_id"] = stringToValue(turn.SessionId)
	document["timestamp"] = stringToValue(timestamp)

	metadata := map[string]*qdrant.Value{}
	for k, v := range turn.Metadata {
		metadata[k] = anyToValue(v)
	}

	payload := map[string]*qdrant.Value{
		"document":        structToValue(document),
		"conversation_id": stringToValue(turn.Id.String()),
		"session_id":      stringToValue(turn.SessionId),
		"model":           stringToValue(turn.Model),
		"timestamp":       stringToValue(timestamp),
		"metadata":        structToValue(metadata),
	}

	return &qdrant.PointStruct{
		Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: turn.Id.String()}},
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: turn.Embedding}}},
		Payload: payload,
	}
}

func (r *ConversationRepository) payloadToTurn(id *qdrant.PointId, payload map[string]*qdrant.Value) (*entity.ConversationTurn, error) {
	turnId, err := uuid.Parse(id.GetUuid())
	if err != nil {
		return nil, fmt.Errorf("point id is not a uuid: %w", err)
	}

	document := map[string]*qdrant.Value{}
	if doc, ok := payload["document"]; ok {
		document = doc.GetStructValue().GetFields()
	}

	timestamp, _ := time.Parse(time.RFC3339, getString(document, "timestamp"))

	var metadata map[string]interface{}
	if meta, ok := payload["metadata"]; ok {
		if fields := meta.GetStructValue().GetFields(); len(fields) > 0 {
			metadata = make(map[string]interface{}, len(fields))
			for k, v := range fields {
				metadata[k] = valueToAny(v)
			}
		}
	}

	return &entity.ConversationTurn{
		Id:              turnId,
		SessionId:       getString(document, "session_id"),
		Model:           getString(document, "model"),
		UserMessage:     getString(document, "user_message"),
		ChatbotResponse: getString(document, "chatbot_response"),
		Timestamp:       timestamp,
		Metadata:        metadata,
	}, nil
}

func getString(fields map[string]*qdrant.Value, key string) string {
	if v, ok := fields[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func stringToValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func structToValue(fields map[string]*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StructValue{
		StructValue: &qdrant.Struct{Fields: fields},
	}}
}

func anyToValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return stringToValue(val)
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case []interface{}:
		values := make([]*qdrant.Value, len(val))
		for i, item := range val {
			values[i] = anyToValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	case map[string]interface{}:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, item := range val {
			fields[k] = anyToValue(item)
		}
		return structToValue(fields)
	default:
		return stringToValue(fmt.Sprintf("%v", val))
	}
}

func valueToAny(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_ListValue:
		items := make([]interface{}, len(kind.ListValue.GetValues()))
		for i, item := range kind.ListValue.GetValues() {
			items[i] = valueToAny(item)
		}
		return items
	case *qdrant.Value_StructValue:
		fields := make(map[string]interface{}, len(kind.StructValue.GetFields()))
		for k, item := range kind.StructValue.GetFields() {
			fields[k] = valueToAny(item)
		}
		return fields
	default:
		return nil
	}
}
