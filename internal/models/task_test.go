package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"task":"create_transaction","data":{"sender_id":"s","receiver_id":"r","amount":"12.50"},"attempts":2,"idempotency_key":"op-1"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Task != TaskCreateTransaction || env.Attempts != 2 || env.IdempotencyKey != "op-1" {
			t.Fatalf("got %+v", env)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte(`{`)); err == nil {
			t.Fatal("want error")
		}
	})

	t.Run("missing task tag", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte(`{"data":{}}`)); err == nil {
			t.Fatal("want error")
		}
	})
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, _ := json.Marshal(RegisterUserData{Username: "alice", Password: "pw12"})
	in := TaskEnvelope{Task: TaskRegisterUser, Data: data, Attempts: 1, IdempotencyKey: "k"}
	body, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Task != in.Task || out.Attempts != in.Attempts || out.IdempotencyKey != in.IdempotencyKey {
		t.Fatalf("round trip changed envelope: %+v", out)
	}
}

func TestAccountIDs(t *testing.T) {
	t.Run("transfer touches both participants", func(t *testing.T) {
		data, _ := json.Marshal(CreateTransactionData{
			SenderID: "s", ReceiverID: "r", Amount: decimal.NewFromInt(1),
		})
		env := TaskEnvelope{Task: TaskCreateTransaction, Data: data}
		ids, err := env.AccountIDs()
		if err != nil {
			t.Fatalf("ids: %v", err)
		}
		if len(ids) != 2 || ids[0] != "s" || ids[1] != "r" {
			t.Fatalf("ids = %v", ids)
		}
	})

	t.Run("non-transfer tasks lock nothing", func(t *testing.T) {
		for _, task := range []TaskType{TaskRegisterUser, TaskGetUsers} {
			env := TaskEnvelope{Task: task, Data: []byte(`{}`)}
			ids, err := env.AccountIDs()
			if err != nil || len(ids) != 0 {
				t.Fatalf("%s: ids=%v err=%v", task, ids, err)
			}
		}
	})
}

func TestCreateTransactionDataValidate(t *testing.T) {
	base := CreateTransactionData{SenderID: "s", ReceiverID: "r", Amount: decimal.RequireFromString("10.00")}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	neg := base
	neg.Amount = decimal.RequireFromString("-5.00")
	if err := neg.Validate(); err == nil {
		t.Fatal("negative amount accepted")
	}

	zero := base
	zero.Amount = decimal.Zero
	if err := zero.Validate(); err == nil {
		t.Fatal("zero amount accepted")
	}

	missing := base
	missing.ReceiverID = ""
	if err := missing.Validate(); err == nil {
		t.Fatal("missing receiver accepted")
	}
}

func TestRegisterUserDataValidate(t *testing.T) {
	ok := RegisterUserData{Username: "alice", Password: "s3cret"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if err := (RegisterUserData{Username: "al", Password: "s3cret"}).Validate(); err == nil {
		t.Fatal("short username accepted")
	}
	if err := (RegisterUserData{Username: "alice", Password: "pw"}).Validate(); err == nil {
		t.Fatal("short password accepted")
	}
}
