package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string { return s.name }
func (s stubChecker) Check(context.Context) error { return s.err }

type stubBreaker bool

func (b stubBreaker) IsOpen() bool { return bool(b) }

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestCheckerRegistry_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{name: "all healthy", checkers: []Checker{stubChecker{name: "a"}, NewBreakerChecker("webhook", stubBreaker(false))}, want: StatusHealthy},
		{name: "open breaker degrades", checkers: []Checker{stubChecker{name: "a"}, NewBreakerChecker("webhook", stubBreaker(true))}, want: StatusDegraded},
		{name: "failure wins", checkers: []Checker{NewBreakerChecker("webhook", stubBreaker(true)), NewSQLiteChecker(stubPinger{err: errors.New("locked")})}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for _, c := range tt.checkers {
				r.Register(c)
			}
			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.checkers))
		})
	}
}

func TestSQLChecker_ReportsName(t *testing.T) {
	c := NewSQLiteChecker(stubPinger{err: errors.New("disk I/O error")})
	err := c.Check(context.Background())
	assert.EqualError(t, err, "sqlite ping failed: disk I/O error")
	assert.Equal(t, "postgresql", NewPostgreSQLChecker(stubPinger{}).Name())
}

func TestKafkaChecker_NoBrokers(t *testing.T) {
	assert.Error(t, NewKafkaChecker(nil).Check(context.Background()))
}
