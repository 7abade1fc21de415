package payout

// GsmDecision tells the retry policy what to do with a classified connector failure.
type GsmDecision string

const (
	GsmRetry     GsmDecision = "retry"
	GsmRequeue   GsmDecision = "requeue"
	GsmDoDefault GsmDecision = "do_default"
)

// GsmKey identifies a gateway status mapping rule.
type GsmKey struct {
	Connector string
	Flow      string
	SubFlow   string
	Code      string
	Message   string
}

// GsmRule maps a connector failure to a retry decision.
type GsmRule struct {
	GsmKey
	Status   string
	Decision GsmDecision
	Step     string
}
