package models

// StageResult is one evaluator's verdict plus whatever fields it measured.
// Unset fields are left untouched when merged into a HealthUpdate.
type StageResult struct {
	Pass    bool          `json:"pass"`
	Reason  string        `json:"reason,omitempty"`
	Pattern PatternFields `json:"pattern"`
	Volume  VolumeFields  `json:"volume"`
}

// Merge copies the set fields of r into u.
func (u *HealthUpdate) Merge(r StageResult) {
	mergePattern(&u.PatternFields, r.Pattern)
	mergeVolume(&u.VolumeFields, r.Volume)
}

func mergePattern(dst *PatternFields, src PatternFields) {
	setIf(&dst.CurrentPrice, src.CurrentPrice)
	setIf(&dst.PivotPrice, src.PivotPrice)
	setIf(&dst.PivotProximityPercent, src.PivotProximityPercent)
	setIf(&dst.IsAtPivot, src.IsAtPivot)
	setIf(&dst.HasPullbackSetup, src.HasPullbackSetup)
	setIf(&dst.VCPPass, src.VCPPass)
	setIf(&dst.PatternAgeDays, src.PatternAgeDays)
	setIf(&dst.HasPivot, src.HasPivot)
	setIf(&dst.DaysSincePivot, src.DaysSincePivot)
	setIf(&dst.Fresh, src.Fresh)
}

func mergeVolume(dst *VolumeFields, src VolumeFields) {
	setIf(&dst.VolLast, src.VolLast)
	setIf(&dst.Vol50dAvg, src.Vol50dAvg)
	setIf(&dst.VolVs50dRatio, src.VolVs50dRatio)
	setIf(&dst.DayChangePct, src.DayChangePct)
}

func setIf[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}
