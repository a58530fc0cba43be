package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Hussein135-coder/souriana-extract-bot/config"
	"github.com/Hussein135-coder/souriana-extract-bot/model"
)

type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, image []byte, format string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func visionDefaults() config.DefaultValues {
	return config.DefaultValues{
		Name:    "صاحب الحساب",
		Number:  "150000",
		Company: "الهرم",
		Date:    "2025-01-01",
		Status:  "0",
		User:    "hussein",
	}
}

func newTestVision(gen ContentGenerator) *VisionService {
	svc := NewVisionServiceWithGenerator(gen, visionDefaults())
	svc.BaseDelay = time.Millisecond
	return svc
}

func TestExtractSuccess(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{`{"name":"أحمد","number":"75000","date":"2025-03-15","company":"الفؤاد","status":"0","user":"hussein"}`},
	}
	svc := newTestVision(gen)

	rec, corrected := svc.Extract(context.Background(), []byte("img"), "image/jpeg")
	if rec == nil {
		t.Fatal("Expected record, got nil")
	}
	if len(corrected) != 0 {
		t.Errorf("Expected no corrections, got %v", corrected)
	}
	if rec["name"] != "أحمد" || rec["number"] != "75000" {
		t.Errorf("Unexpected record: %v", rec)
	}
	if gen.calls != 1 {
		t.Errorf("Expected 1 call, got %d", gen.calls)
	}
}

func TestExtractFencedResponse(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{"```json\n{\"name\":\"أحمد\",\"number\":\"75000\",\"date\":\"2025-03-15\",\"company\":\"الفؤاد\"}\n```"},
	}
	svc := newTestVision(gen)

	rec, _ := svc.Extract(context.Background(), []byte("img"), "image/png")
	if rec == nil {
		t.Fatal("Expected record, got nil")
	}
	if rec["name"] != "أحمد" {
		t.Errorf("Expected name أحمد, got %q", rec["name"])
	}
	// Defaults forced regardless of the model output
	if rec["status"] != "0" || rec["user"] != "hussein" {
		t.Errorf("Expected forced status/user, got %v", rec)
	}
}

func TestExtractMalformedResponse(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"this is not json"}}
	svc := newTestVision(gen)

	rec, _ := svc.Extract(context.Background(), []byte("img"), "image/jpeg")
	if rec != nil {
		t.Errorf("Expected nil record for malformed response, got %v", rec)
	}
	if gen.calls != 1 {
		t.Errorf("Expected no retry on parse failure, got %d calls", gen.calls)
	}
}

func TestExtractRetriesThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{
		errs:      []error{errors.New("timeout"), errors.New("timeout"), nil},
		responses: []string{"", "", `{"name":"أحمد","number":"80000","date":"2025-03-15","company":"الهرم"}`},
	}
	svc := newTestVision(gen)

	rec, _ := svc.Extract(context.Background(), []byte("img"), "image/jpeg")
	if rec == nil {
		t.Fatal("Expected record, got nil")
	}
	if rec["number"] != "80000" {
		t.Errorf("Expected number 80000, got %q", rec["number"])
	}
	if gen.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", gen.calls)
	}
}

func TestExtractFallsBackToDefaults(t *testing.T) {
	gen := &fakeGenerator{
		errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
	}
	svc := newTestVision(gen)

	rec, _ := svc.Extract(context.Background(), []byte("img"), "image/jpeg")
	want := model.FromDefaults(visionDefaults())
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("Expected default record %v, got %v", want, rec)
	}
	if gen.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", gen.calls)
	}
}

func TestExtractNormalizesInvalidAmount(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{`{"name":"أحمد","number":"12000","date":"2025-03-15","company":"الهرم"}`},
	}
	svc := newTestVision(gen)

	rec, corrected := svc.Extract(context.Background(), []byte("img"), "image/jpeg")
	if rec["number"] != "150000" {
		t.Errorf("Expected amount reset to default, got %q", rec["number"])
	}
	if !reflect.DeepEqual(corrected, []string{"number"}) {
		t.Errorf("Expected number flagged, got %v", corrected)
	}
}

func TestCheckAPIKey(t *testing.T) {
	svc := newTestVision(&fakeGenerator{responses: []string{"hi"}})
	if err := svc.CheckAPIKey(context.Background()); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	svc = newTestVision(&fakeGenerator{errs: []error{errors.New("invalid key")}})
	if err := svc.CheckAPIKey(context.Background()); err == nil {
		t.Error("Expected error for invalid key")
	}
}

func TestImageFormat(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/jpeg", "jpeg"},
		{"image/png", "png"},
		{"", "jpeg"},
		{"application/octet-stream", "jpeg"},
	}
	for _, tt := range tests {
		if got := imageFormat(tt.mime); got != tt.want {
			t.Errorf("imageFormat(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
