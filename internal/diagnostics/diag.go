package diagnostics

import "time"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes reported by the daemon.
const (
	BusTx          = "BUS.TX"
	BusFallback    = "BUS.FALLBACK"
	CmdUnknown     = "CMD.UNKNOWN"
	CmdMalformed   = "CMD.MALFORMED"
	FadeLoaded     = "FADE.LOADED"
	FadeFailed     = "FADE.FAILED"
	ChipReset      = "CHIP.RESET"
	ChipResetNoAck = "CHIP.RESET_NACK"
	TestRunning    = "TEST.RUNNING"
	TestUnknown    = "TEST.UNKNOWN"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// BusError describes a failed register transaction issued by op.
func BusError(op string, err error) Diagnostic {
	return Diagnostic{
		Time:     time.Now(),
		Severity: Err,
		Code:     BusTx,
		Summary:  "I2C transaction failed",
		Detail:   err.Error(),
		LikelyCauses: []string{
			"wrong chip address or address pins",
			"chip unpowered or SDA/SCL miswired",
			"missing pull-up resistors",
		},
		SuggestedFixes: []string{
			"run i2cdetect on the bus and compare with addr",
			"check the reset address is not shared with another device",
		},
		Evidence: map[string]any{"op": op},
	}
}

func UnknownCommand(op string) Diagnostic {
	return Diagnostic{
		Time:     time.Now(),
		Severity: Warn,
		Code:     CmdUnknown,
		Summary:  "Unknown control command",
		Evidence: map[string]any{"op": op},
	}
}

func New(sev Severity, code, summary string) Diagnostic {
	return Diagnostic{Time: time.Now(), Severity: sev, Code: code, Summary: summary}
}
