package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		name    string
		loc     Location
		wantErr bool
	}{
		{name: "manila", loc: Location{Lat: 14.5995, Lng: 120.9842}},
		{name: "corners", loc: Location{Lat: -90, Lng: 180}},
		{name: "lat above range", loc: Location{Lat: 90.0001, Lng: 0}, wantErr: true},
		{name: "lng below range", loc: Location{Lat: 0, Lng: -180.5}, wantErr: true},
		{name: "nan", loc: Location{Lat: math.NaN(), Lng: 0}, wantErr: true},
		{name: "inf", loc: Location{Lat: 0, Lng: math.Inf(1)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%+v) error = %v, wantErr %v", tt.loc, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Fatalf("ожидали ErrValidation, получили %v", err)
			}
		})
	}
}

func TestSentinelErrorsAreValidation(t *testing.T) {
	if !errors.Is(ErrEmptyStory, ErrValidation) {
		t.Fatal("ErrEmptyStory должна быть ErrValidation")
	}
	if errors.Is(ErrNoDraft, ErrValidation) {
		t.Fatal("ErrNoDraft не должна быть ErrValidation")
	}
}

func TestStoryCloneIsDeep(t *testing.T) {
	at := time.Now()
	orig := Story{ID: 1, Text: "x", Location: &Location{Lat: 1, Lng: 2}, ApprovedAt: &at}
	cp := orig.Clone()
	cp.Location.Lat = 50
	*cp.ApprovedAt = at.Add(time.Hour)
	if orig.Location.Lat != 1 {
		t.Fatalf("клон разделяет Location с оригиналом")
	}
	if !orig.ApprovedAt.Equal(at) {
		t.Fatalf("клон разделяет ApprovedAt с оригиналом")
	}
}
