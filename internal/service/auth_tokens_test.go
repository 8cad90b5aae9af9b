package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/boddenberg/coatings-pipeline-go/internal/service"
)

func TestTokenVerifier_RoundTrip(t *testing.T) {
	v := service.NewTokenVerifier("s3cret")

	token, err := v.SignAccessToken("rep-ana", "Ana", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Sub != "rep-ana" || claims.Name != "Ana" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := service.NewTokenVerifier("s3cret")
	other := service.NewTokenVerifier("different")

	wrongKey, _ := other.SignAccessToken("rep-ana", "", time.Hour)
	expired, _ := v.SignAccessToken("rep-ana", "", -time.Minute)
	noSubject, _ := v.SignAccessToken("", "", time.Hour)

	for name, token := range map[string]string{
		"garbage":    "not-a-jwt",
		"wrong key":  wrongKey,
		"expired":    expired,
		"no subject": noSubject,
	} {
		_, err := v.ValidateAccessToken(token)
		var ue *domain.ErrUnauthorized
		if !errors.As(err, &ue) {
			t.Errorf("%s: expected unauthorized, got %v", name, err)
		}
	}
}
