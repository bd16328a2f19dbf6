package providers

import (
	"errors"
	"net/http"
	"testing"
)

func TestSignature_RoundTripEveryProvider(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	for _, src := range DefaultRegistry().Sources() {
		a, _ := DefaultRegistry().Lookup(string(src))
		sig := a.Signature()
		if !sig.Enabled() {
			continue
		}
		h := http.Header{}
		ts := ""
		if sig.TimestampHeader != "" {
			ts = "2024-05-01T10:00:00Z"
			h.Set(sig.TimestampHeader, ts)
		}
		h.Set(sig.Header, sig.Sign("s3cret", body, ts))

		if err := sig.Verify(h, body, "s3cret"); err != nil {
			t.Fatalf("%s: Verify good signature: %v", src, err)
		}
		if err := sig.Verify(h, []byte(`{"hello":"w0rld"}`), "s3cret"); !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("%s: altered body should fail, got %v", src, err)
		}
		if err := sig.Verify(h, body, "other"); !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("%s: wrong secret should fail, got %v", src, err)
		}
	}
}

func TestSignature_MissingPieces(t *testing.T) {
	sig := Zendesk{}.Signature()
	body := []byte(`{}`)

	h := http.Header{}
	if err := sig.Verify(h, body, "k"); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("missing header should fail, got %v", err)
	}

	h.Set(sig.Header, sig.Sign("k", body, "ts"))
	if err := sig.Verify(h, body, "k"); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("missing timestamp should fail, got %v", err)
	}

	h.Set(sig.TimestampHeader, "ts")
	if err := sig.Verify(h, body, ""); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("empty secret should fail closed, got %v", err)
	}
	if err := sig.Verify(h, body, "k"); err != nil {
		t.Fatalf("complete headers should pass: %v", err)
	}
}

func TestSignature_PrefixRequired(t *testing.T) {
	sig := Intercom{}.Signature()
	body := []byte(`{"topic":"x"}`)
	full := sig.Sign("k", body, "")

	h := http.Header{}
	h.Set(sig.Header, full[len(sig.Prefix):])
	if err := sig.Verify(h, body, "k"); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("signature without prefix should fail, got %v", err)
	}
	h.Set(sig.Header, "SHA1="+full[len(sig.Prefix):])
	if err := sig.Verify(h, body, "k"); err != nil {
		t.Fatalf("prefix match is case-insensitive: %v", err)
	}
}

func TestSignature_GarbageEncoding(t *testing.T) {
	sig := Freshdesk{}.Signature()
	h := http.Header{}
	h.Set(sig.Header, "not-hex!!")
	if err := sig.Verify(h, []byte(`{}`), "k"); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("undecodable signature should fail, got %v", err)
	}
}

func TestManualHasNoSignature(t *testing.T) {
	if (Manual{}).Signature().Enabled() {
		t.Fatalf("manual source must not be reachable through webhooks")
	}
}
