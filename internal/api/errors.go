package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Upstream error codes the fleet reacts to.
const (
	CodeCooldown        = 4000
	CodeInTransit       = 4214
	CodeSurveyExpired   = 4221
	CodeSurveyExhausted = 4224
	CodeRateLimited     = 429
)

// Error is a non-2xx response. Its message carries the status and raw body
// so string inspection works on wrapped errors too.
type Error struct {
	Status  int
	Body    string
	Code    int
	Message string
	Data    map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Body)
}

func newError(status int, body []byte) *Error {
	e := &Error{Status: status, Body: strings.TrimSpace(string(body))}
	var env struct {
		Error struct {
			Message string         `json:"message"`
			Code    int            `json:"code"`
			Data    map[string]any `json:"data"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		e.Code = env.Error.Code
		e.Message = env.Error.Message
		e.Data = env.Error.Data
	}
	return e
}

// WaitKind says why an action has to wait before it can be retried.
type WaitKind int

const (
	WaitNone WaitKind = iota
	WaitCooldown
	WaitTransit
	WaitRateLimit
)

func (k WaitKind) String() string {
	switch k {
	case WaitCooldown:
		return "cooldown"
	case WaitTransit:
		return "transit"
	case WaitRateLimit:
		return "rate-limit"
	default:
		return "none"
	}
}

// Wait is the delay encoded in a retryable error.
type Wait struct {
	Kind     WaitKind
	Duration time.Duration
}

var (
	reCooldownText = regexp.MustCompile(`(?i)cooldown for (\d+(?:\.\d+)?) second`)
	reRemaining    = regexp.MustCompile(`"remainingSeconds"\s*:\s*(\d+(?:\.\d+)?)`)
	reArrivesText  = regexp.MustCompile(`(?i)arrives in (\d+(?:\.\d+)?) second`)
	reToArrival    = regexp.MustCompile(`"secondsToArrival"\s*:\s*(\d+(?:\.\d+)?)`)
	reRetryAfter   = regexp.MustCompile(`"retryAfter"\s*:\s*(\d+(?:\.\d+)?)`)
	reStatus429    = regexp.MustCompile(`(?i)(status|error|code)\D{0,3}429\b`)
)

// Classify reports whether err asks the caller to wait and for how long.
// Structured fields win; the message text is the fallback since the
// provider does not always populate them.
func Classify(err error) (Wait, bool) {
	if err == nil {
		return Wait{}, false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests || apiErr.Code == CodeRateLimited:
			return Wait{Kind: WaitRateLimit, Duration: seconds(dataNumber(apiErr.Data, "retryAfter"), time.Second)}, true
		case apiErr.Code == CodeCooldown:
			if cd, ok := apiErr.Data["cooldown"].(map[string]any); ok {
				if d := dataNumber(cd, "remainingSeconds"); d > 0 {
					return Wait{Kind: WaitCooldown, Duration: seconds(d, 0)}, true
				}
			}
		case apiErr.Code == CodeInTransit:
			if d := dataNumber(apiErr.Data, "secondsToArrival"); d > 0 {
				return Wait{Kind: WaitTransit, Duration: seconds(d, 0)}, true
			}
		}
	}
	return classifyText(err.Error())
}

func classifyText(msg string) (Wait, bool) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "too many requests") || reRetryAfter.MatchString(msg) || reStatus429.MatchString(msg):
		return Wait{Kind: WaitRateLimit, Duration: seconds(firstNumber(msg, reRetryAfter), time.Second)}, true
	case strings.Contains(lower, "cooldown"):
		d := firstNumber(msg, reCooldownText, reRemaining)
		if d > 0 {
			return Wait{Kind: WaitCooldown, Duration: seconds(d, 0)}, true
		}
	case strings.Contains(msg, "4214") || strings.Contains(lower, "in-transit") || strings.Contains(lower, "in transit") ||
		strings.Contains(lower, "arrives in") || strings.Contains(msg, "secondsToArrival"):
		d := firstNumber(msg, reToArrival, reArrivesText)
		if d > 0 {
			return Wait{Kind: WaitTransit, Duration: seconds(d, 0)}, true
		}
	}
	return Wait{}, false
}

// IsSurveyGone reports whether err rejected an expired or exhausted survey.
func IsSurveyGone(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeSurveyExpired || apiErr.Code == CodeSurveyExhausted
	}
	return false
}

func firstNumber(msg string, res ...*regexp.Regexp) float64 {
	for _, re := range res {
		if m := re.FindStringSubmatch(msg); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v
			}
		}
	}
	return 0
}

func dataNumber(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func seconds(v float64, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v * float64(time.Second))
}
