package diffengine

// Level buckets a risk score.
type Level string

const (
	RiskLow    Level = "low"
	RiskMedium Level = "medium"
	RiskHigh   Level = "high"
)

// Score is one weighted risk component.
type Score struct {
	Value float64
	Level Level
}

// Assessment combines the file, function, and complexity risk components with
// an overall score built from the same weighted inputs.
type Assessment struct {
	Files      Score
	Functions  Score
	Complexity Score
	Overall    Score
}

type riskInputs struct {
	addedFiles      int
	removedFiles    int
	modifiedFiles   int
	symbols         *SymbolChanges
	complexityDelta int
}

func assessRisk(in riskInputs) Assessment {
	fileScore := float64(in.addedFiles)*1.0 + float64(in.removedFiles)*1.0 + float64(in.modifiedFiles)*0.5

	var fnScore float64
	if in.symbols != nil {
		fnScore = float64(len(in.symbols.Added))*0.5 + float64(len(in.symbols.Removed))*0.5 + float64(len(in.symbols.Modified))*0.25
	}

	complexityScore := float64(in.complexityDelta) * 0.1
	if complexityScore < 0 {
		complexityScore = 0
	}

	overall := fileScore + fnScore + complexityScore

	return Assessment{
		Files:      Score{Value: fileScore, Level: bucket(fileScore, 3, 10)},
		Functions:  Score{Value: fnScore, Level: bucket(fnScore, 5, 15)},
		Complexity: Score{Value: complexityScore, Level: bucket(complexityScore, 2, 5)},
		Overall:    Score{Value: overall, Level: bucket(overall, 5, 15)},
	}
}

func bucket(score, low, medium float64) Level {
	switch {
	case score < low:
		return RiskLow
	case score < medium:
		return RiskMedium
	default:
		return RiskHigh
	}
}
