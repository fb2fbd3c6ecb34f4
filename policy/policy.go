// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package policy declares the broadcast / promotion / cast error policies a
// graph is configured with, plus an audit hook so a caller can observe
// the policy decisions made under Warn or Raise (adapted from the teacher's auth package, whose
// Permission enum and AuditMethod decorator play an equivalent role for
// authorization decisions).
package policy

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-errors.v1"
)

// ErrorPolicy controls how the graph reacts to an implicit coercion: it may
// proceed silently, proceed but log, or refuse and raise.
type ErrorPolicy int

const (
	// Quiet proceeds with the implicit coercion without comment.
	Quiet ErrorPolicy = iota
	// Warn proceeds with the implicit coercion and notifies any Observer.
	Warn
	// Raise refuses the implicit coercion and returns an error instead.
	Raise
)

func (p ErrorPolicy) String() string {
	switch p {
	case Quiet:
		return "quiet"
	case Warn:
		return "warn"
	case Raise:
		return "raise"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ErrPolicyViolation is raised when a Raise policy rejects an implicit
// coercion.
var ErrPolicyViolation = errors.NewKind("%s policy violation: %s")

// Decision names which policy surface the observer is being told about.
type Decision int

const (
	// BroadcastDecision names an implicit Broadcast node insertion.
	BroadcastDecision Decision = iota
	// PromotionDecision names an implicit dtype promotion.
	PromotionDecision
	// CastDecision names an implicit Cast node insertion.
	CastDecision
)

func (d Decision) String() string {
	switch d {
	case BroadcastDecision:
		return "broadcast"
	case PromotionDecision:
		return "promotion"
	case CastDecision:
		return "cast"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Observer is notified of every policy decision a graph makes under Warn or
// Raise, whether or not it was ultimately allowed; decisions under Quiet are
// not reported. It plays the role the teacher's AuditMethod interface plays
// for authentication/authorization events.
type Observer interface {
	// Observe is called once per implicit coercion made under Warn or
	// Raise, successful or not.
	Observe(decision Decision, policy ErrorPolicy, detail string, err error)
}

// NoopObserver discards every notification.
type NoopObserver struct{}

// Observe implements Observer.
func (NoopObserver) Observe(Decision, ErrorPolicy, string, error) {}

// LogObserver reports every policy decision to a logrus.Logger, mirroring
// the teacher's AuditLog (auth/audit.go), which logs authentication and
// authorization events the same way.
type LogObserver struct {
	log *logrus.Entry
}

// NewLogObserver builds an Observer that logs to l under the "policy"
// system field.
func NewLogObserver(l *logrus.Logger) *LogObserver {
	return &LogObserver{log: l.WithField("system", "policy")}
}

// Observe implements Observer.
func (o *LogObserver) Observe(decision Decision, p ErrorPolicy, detail string, err error) {
	fields := logrus.Fields{
		"decision": decision.String(),
		"policy":   p.String(),
		"detail":   detail,
		"success":  err == nil,
	}
	if err != nil {
		fields["err"] = err
	}
	o.log.WithFields(fields).Debug("policy decision")
}

// Apply runs a policy decision: under Quiet it always allows; under Warn it
// allows but notifies obs; under Raise it notifies obs with a synthesized
// error and returns that error.
func Apply(obs Observer, decision Decision, p ErrorPolicy, detail string) error {
	if obs == nil {
		obs = NoopObserver{}
	}
	switch p {
	case Raise:
		err := ErrPolicyViolation.New(decision.String(), detail)
		obs.Observe(decision, p, detail, err)
		return err
	case Warn:
		obs.Observe(decision, p, detail, nil)
		return nil
	default:
		return nil
	}
}
