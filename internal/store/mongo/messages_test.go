package mongo

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestReceiptStage(t *testing.T) {
	stage := receiptStage("bob", "delivered_to", "read_by")
	if len(stage) != 1 || stage[0].Key != "$set" {
		t.Fatalf("stage = %v, want one $set", stage)
	}
	set, ok := stage[0].Value.(bson.D)
	if !ok {
		t.Fatalf("$set value is %T, want bson.D", stage[0].Value)
	}
	if len(set) != 2 || set[0].Key != "delivered_to" || set[1].Key != "read_by" {
		t.Errorf("$set fields = %v, want delivered_to, read_by", set)
	}
}

func TestStatusPipelineShape(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := statusPipeline(receiptStage("bob", "delivered_to"), "tok", at)
	if len(p) != 4 {
		t.Fatalf("len(pipeline) = %d, want 4", len(p))
	}
	if p[1][0].Key != "$set" || p[1][0].Value.(bson.D)[0].Key != "_next" {
		t.Errorf("stage 1 = %v, want $set _next", p[1])
	}
	var keys []string
	for _, e := range p[2][0].Value.(bson.D) {
		keys = append(keys, e.Key)
	}
	want := []string{"change_token", "delivered_at", "read_at", "status"}
	if len(keys) != len(want) {
		t.Fatalf("stage 2 keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("stage 2 key %d = %q, want %q", i, keys[i], want[i])
		}
	}
	if p[3][0].Key != "$unset" {
		t.Errorf("last stage = %v, want $unset", p[3])
	}
	if _, err := bson.Marshal(bson.D{{Key: "pipeline", Value: p}}); err != nil {
		t.Errorf("pipeline does not encode: %v", err)
	}
}

func TestConnectRequiresURI(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); err == nil {
		t.Error("Connect(empty uri) = nil error, want error")
	}
}
