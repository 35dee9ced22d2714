package x402

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianpay/x402/internal/logger"
)

// ProtectConfig configures the payment middleware for one resource.
type ProtectConfig struct {
	Verifier  Verifier
	Generator *RequirementsGenerator

	PriceUSD    float64
	Resource    string
	Description string
	Timeout     int // payment validity window in seconds, zero for default

	// OnPaid is invoked on a separate goroutine after a successful
	// verification, typically to emit webhooks. May be nil.
	OnPaid func(Verdict)
}

// Protect wraps a handler behind an x402 payment challenge. Requests
// without a valid X-PAYMENT header receive a 402 with payment requirements;
// verified requests reach the handler with an X-PAYMENT-RESPONSE receipt
// attached.
func Protect(cfg ProtectConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context())

			requirements, err := cfg.Generator.Generate(cfg.PriceUSD, GenerateOpts{
				Resource:    cfg.Resource,
				Description: cfg.Description,
				Timeout:     cfg.Timeout,
			})
			if err != nil {
				log.Error().Err(err).Str("resource", cfg.Resource).Msg("requirements.generate_failed")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			header := r.Header.Get(HeaderPayment)
			if header == "" {
				writeRequirements(w, requirements)
				return
			}

			verdict := cfg.Verifier.VerifyPayment(r.Context(), header, requirements.Accepts[0])
			if !verdict.Valid {
				logVerdict(log, verdict, cfg.Resource)

				if verdict.Code == CodeVerificationError {
					writeError(w, http.StatusInternalServerError, "internal server error")
					return
				}

				rejected := *requirements
				rejected.Error = verdict.Code.UserMessage()
				writeRequirements(w, &rejected)
				return
			}

			receipt := &Receipt{
				Signature: verdict.Signature,
				Network:   requirements.Accepts[0].Network,
				Amount:    verdict.Amount,
				Timestamp: time.Now().UnixMilli(),
				Status:    "verified",
				BlockTime: verdict.BlockTime,
				Slot:      verdict.Slot,
			}
			if encoded, err := EncodeReceipt(receipt); err == nil {
				w.Header().Set(HeaderPaymentResponse, encoded)
			} else {
				log.Error().Err(err).Msg("receipt.encode_failed")
			}

			log.Info().
				Str("signature", logger.TruncateSignature(verdict.Signature)).
				Str("payer", verdict.Payer).
				Uint64("amount", verdict.Amount).
				Str("resource", cfg.Resource).
				Msg("payment.verified")

			if cfg.OnPaid != nil {
				v := verdict
				go cfg.OnPaid(v)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func logVerdict(log zerolog.Logger, v Verdict, resource string) {
	ev := log.Warn().
		Str("code", string(v.Code)).
		Str("resource", resource)
	if v.Signature != "" {
		ev = ev.Str("signature", logger.TruncateSignature(v.Signature))
	}
	if len(v.Debug) > 0 {
		ev = ev.Interface("debug", v.Debug)
	}
	ev.Msg("payment.rejected")
}

func writeRequirements(w http.ResponseWriter, reqs *PaymentRequirements) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(reqs)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
