package domain

// Severity classifica auditorias, anomalias e alertas.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities em ordem crescente.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank ordena severidades; valores desconhecidos ficam abaixo de low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// RiskIncrement é quanto uma anomalia dessa severidade soma ao risco do usuário.
func (s Severity) RiskIncrement() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 5
	case SeverityCritical:
		return 10
	}
	return 0
}

// MaxSeverity devolve a mais alta entre as informadas.
func MaxSeverity(ss ...Severity) Severity {
	var out Severity
	for _, s := range ss {
		if s.Rank() > out.Rank() {
			out = s
		}
	}
	return out
}
