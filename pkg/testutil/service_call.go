package testutil

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// ServiceCall records a service call for testing/verification
type ServiceCall struct {
	Timestamp   time.Time
	Domain      string
	Service     string
	ServiceData map[string]interface{}
}

// Commands returns the command field as a list of strings. A scalar command
// is returned as a one-element list
func (c ServiceCall) Commands() []string {
	switch v := c.ServiceData["command"].(type) {
	case nil:
		return nil
	case []interface{}:
		return lo.Map(v, func(item interface{}, _ int) string { return fmt.Sprint(item) })
	default:
		return []string{fmt.Sprint(v)}
	}
}

// FilterServiceCalls filters service calls by domain and service
func FilterServiceCalls(calls []ServiceCall, domain, service string) []ServiceCall {
	return lo.Filter(calls, func(call ServiceCall, _ int) bool {
		return call.Domain == domain && call.Service == service
	})
}

// FindServiceCallWithData finds a service call with matching data key/value
func FindServiceCallWithData(calls []ServiceCall, domain, service, dataKey string, dataValue interface{}) *ServiceCall {
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		if call.Domain == domain && call.Service == service {
			if val, ok := call.ServiceData[dataKey]; ok && val == dataValue {
				return &call
			}
		}
	}
	return nil
}

// FindServiceCallWithEntityID finds a service call for a specific entity
func FindServiceCallWithEntityID(calls []ServiceCall, domain, service, entityID string) *ServiceCall {
	return FindServiceCallWithData(calls, domain, service, "entity_id", entityID)
}

// FindServiceCallWithEntityIDOrAny is FindServiceCallWithEntityID, except an
// empty entityID matches on domain and service only
func FindServiceCallWithEntityIDOrAny(calls []ServiceCall, domain, service, entityID string) *ServiceCall {
	if entityID != "" {
		return FindServiceCallWithEntityID(calls, domain, service, entityID)
	}
	matches := FilterServiceCalls(calls, domain, service)
	if len(matches) == 0 {
		return nil
	}
	return &matches[len(matches)-1]
}
