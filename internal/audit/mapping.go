package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseFullMethod returns action and resource for a gRPC full method
// (e.g. /travelcms.invitation.v1.InvitationService/CancelInvitation -> cancel, invitation).
// Action is the method verb lower-cased; resource is the service name without the Service suffix.
func ParseFullMethod(fullMethod string) ActionResource {
	// fullMethod format: /package.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	resource := serviceToResource(beforeSlash[dot+1:])
	return ActionResource{Action: methodToAction(method, resource), Resource: resource}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

// methodToAction takes the leading verb: CancelInvitation -> cancel, ListInvitations -> list.
func methodToAction(method, resource string) string {
	if method == "" {
		return "unknown"
	}
	lower := strings.ToLower(method)
	for _, suffix := range []string{resource + "s", resource} {
		if suffix != "" && strings.HasSuffix(lower, suffix) && len(lower) > len(suffix) {
			return lower[:len(lower)-len(suffix)]
		}
	}
	for i := 1; i < len(method); i++ {
		if method[i] >= 'A' && method[i] <= 'Z' {
			return lower[:i]
		}
	}
	return lower
}
