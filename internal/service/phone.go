package service

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var tzMobile = regexp.MustCompile(`^255[67]\d{8}$`)

// NormalizePhone turns a Tanzanian mobile number into the 255XXXXXXXXX form
// ClickPesa expects.
func NormalizePhone(raw string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(p, "0"):
		p = "255" + p[1:]
	case len(p) == 9:
		p = "255" + p
	}
	if !tzMobile.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, raw)
	}
	return p, nil
}

var refSeq atomic.Uint64

// NewOrderReference builds an alphanumeric reference unique across processes:
// prefix, unix millis, a per-process counter, four random hex digits and the
// user id.
func NewOrderReference(prefix string, userID uint) string {
	seq := refSeq.Add(1) % 10000
	rnd := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("%s%d%04d%s%06d", prefix, time.Now().UnixMilli(), seq, rnd, userID%1000000)
}
