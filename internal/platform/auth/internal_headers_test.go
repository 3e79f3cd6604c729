package auth

import (
	"strconv"
	"testing"
	"time"
)

func TestComputeAndVerifySignature(t *testing.T) {
	secret := "test-secret"
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	sig, err := ComputeInternalAuthSignature(secret, ts, "POST", "/proposals/p1/transitions", "req-1", "user-1", "owner", "fac-1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if err := VerifyInternalAuthSignature(secret, ts, "POST", "/proposals/p1/transitions", "req-1", "user-1", "owner", "fac-1", sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	secret := "test-secret"
	ts := "1700000000"

	sig, err := ComputeInternalAuthSignature(secret, ts, "POST", "/proposals/p1/transitions", "req-1", "user-1", "owner", "fac-1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	cases := []struct {
		name   string
		verify func() error
	}{
		{"role changed", func() error {
			return VerifyInternalAuthSignature(secret, ts, "POST", "/proposals/p1/transitions", "req-1", "user-1", "school_officer", "fac-1", sig)
		}},
		{"subject changed", func() error {
			return VerifyInternalAuthSignature(secret, ts, "POST", "/proposals/p1/transitions", "req-1", "user-2", "owner", "fac-1", sig)
		}},
		{"path changed", func() error {
			return VerifyInternalAuthSignature(secret, ts, "POST", "/proposals/p2/transitions", "req-1", "user-1", "owner", "fac-1", sig)
		}},
		{"wrong secret", func() error {
			return VerifyInternalAuthSignature("other", ts, "POST", "/proposals/p1/transitions", "req-1", "user-1", "owner", "fac-1", sig)
		}},
		{"empty signature", func() error {
			return VerifyInternalAuthSignature(secret, ts, "POST", "/proposals/p1/transitions", "req-1", "user-1", "owner", "fac-1", "")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.verify() == nil {
				t.Fatal("expected verification failure")
			}
		})
	}
}

func TestSignatureIsCaseInsensitiveOnRole(t *testing.T) {
	secret := "test-secret"
	ts := "1700000000"

	sig, err := ComputeInternalAuthSignature(secret, ts, "post", "/p", "", "user-1", "OWNER", "")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if err := VerifyInternalAuthSignature(secret, ts, "POST", "/p", "", "user-1", "owner", "", sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyInternalAuthTimestamp(t *testing.T) {
	now := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	skew := 5 * time.Minute

	fresh := strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)
	if err := VerifyInternalAuthTimestamp(fresh, now, skew); err != nil {
		t.Fatalf("fresh timestamp rejected: %v", err)
	}

	stale := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
	if VerifyInternalAuthTimestamp(stale, now, skew) == nil {
		t.Fatal("stale timestamp accepted")
	}

	future := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)
	if VerifyInternalAuthTimestamp(future, now, skew) == nil {
		t.Fatal("future timestamp accepted")
	}

	if VerifyInternalAuthTimestamp("not-a-number", now, skew) == nil {
		t.Fatal("garbage timestamp accepted")
	}
}
