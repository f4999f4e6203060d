package validation

import (
	"testing"

	"github.com/opencouncil/scribe/errors"
)

type intakeRequest struct {
	MediaURL    string `json:"media_url" validate:"required,url"`
	DeliveryURL string `json:"delivery_url" validate:"required,url"`
	Language    string `json:"language" validate:"omitempty,oneof=en de fr"`
}

func TestValidateOK(t *testing.T) {
	req := intakeRequest{
		MediaURL:    "https://media.example/council.mp3",
		DeliveryURL: "https://caller.example/hook",
		Language:    "en",
	}
	if err := Validate(req); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	err := Validate(intakeRequest{DeliveryURL: "https://caller.example/hook"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("unexpected code %s", appErr.Code)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 1 {
		t.Fatalf("expected one field error, got %v", appErr.Details["fields"])
	}
	if fields[0].Field != "media_url" {
		t.Errorf("expected media_url, got %s", fields[0].Field)
	}
}

func TestValidateOneOf(t *testing.T) {
	err := Validate(intakeRequest{
		MediaURL:    "https://media.example/council.mp3",
		DeliveryURL: "https://caller.example/hook",
		Language:    "xx",
	})
	if err == nil {
		t.Fatal("expected validation error for language")
	}
}
