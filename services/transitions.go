package services

import "github.com/FASALGAF00R/Campuscore-backend/models"

// kindPolicy is the per-kind configuration of the shared state machine.
type kindPolicy struct {
	eventPrefix     string
	notification    models.NotificationType
	label           string
	categories      []string
	priorities      []models.Priority
	defaultPriority models.Priority
	sideTerminals   []models.Status
}

var policies = map[models.Kind]kindPolicy{
	models.KindSOS: {
		eventPrefix:     "sos",
		notification:    models.NotificationSOSAlert,
		label:           "SOS alert",
		categories:      []string{"bullying", "medical", "safety", "disaster", "other"},
		priorities:      []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical},
		defaultPriority: models.PriorityHigh,
		sideTerminals:   []models.Status{models.StatusCancelled, models.StatusRejected},
	},
	models.KindEmergencyAssist: {
		eventPrefix:     "emergency",
		notification:    models.NotificationEmergencyAssist,
		label:           "Assistance request",
		categories:      []string{"navigation", "facilities", "forms", "procedures", "general", "other"},
		priorities:      []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh},
		defaultPriority: models.PriorityMedium,
		sideTerminals:   []models.Status{models.StatusCancelled, models.StatusRejected},
	},
	models.KindCounseling: {
		eventPrefix:     "counseling",
		notification:    models.NotificationCounselingRequest,
		label:           "Counseling request",
		categories:      []string{"mental-health", "career", "personal", "academic", "other"},
		priorities:      []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent},
		defaultPriority: models.PriorityMedium,
		sideTerminals:   []models.Status{models.StatusDeclined, models.StatusCancelled},
	},
}

func policyFor(kind models.Kind) (kindPolicy, bool) {
	p, ok := policies[kind]
	return p, ok
}

func (p kindPolicy) allowsCategory(c string) bool {
	for _, v := range p.categories {
		if v == c {
			return true
		}
	}
	return false
}

func (p kindPolicy) allowsPriority(pr models.Priority) bool {
	for _, v := range p.priorities {
		if v == pr {
			return true
		}
	}
	return false
}

func (p kindPolicy) eventName(action string) string { return p.eventPrefix + ":" + action }

// assignableFrom are the states Assign may start from. Re-assigning an
// assigned request keeps it assigned.
var assignableFrom = []models.Status{models.StatusPending, models.StatusAssigned}

// messageAdvancePolicy: the first exchange on a request that nobody has
// started yet means work has begun.
var messageAdvancePolicy = struct {
	from []models.Status
	to   models.Status
}{
	from: []models.Status{models.StatusPending, models.StatusAssigned},
	to:   models.StatusInProgress,
}

// transitionTable holds the UpdateStatus edges per kind. Terminal states
// have no entry.
var transitionTable = buildTransitionTable()

func buildTransitionTable() map[models.Kind]map[models.Status][]models.Status {
	table := make(map[models.Kind]map[models.Status][]models.Status, len(policies))
	for kind, p := range policies {
		table[kind] = map[models.Status][]models.Status{
			models.StatusPending:    append([]models.Status{}, p.sideTerminals...),
			models.StatusAssigned:   append([]models.Status{models.StatusInProgress}, p.sideTerminals...),
			models.StatusInProgress: {models.StatusCompleted},
		}
	}
	return table
}

// canMove reports whether UpdateStatus may move a request of kind from one
// status to another.
func canMove(kind models.Kind, from, to models.Status) bool {
	for _, next := range transitionTable[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}

func statusIn(s models.Status, set []models.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func statusStrings(set []models.Status) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}
