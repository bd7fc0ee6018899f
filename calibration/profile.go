package calibration

import (
	"encoding/json"
	"os"
)

// ProfileFile is the on-disk shape of calibration_profile.json: the
// persisted half of a calibration run, independent of any live
// Controller.
type ProfileFile struct {
	Valid       bool                `json:"valid"`
	Avg         [NumStrings]float64 `json:"avg"`
	Peak        [NumStrings]float64 `json:"peak"`
	Multipliers [NumStrings]float64 `json:"multipliers"`
	Timestamp   string              `json:"timestamp"`
}

// SaveProfile writes profile to path as indented JSON.
func SaveProfile(path string, profile ProfileFile) error {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadProfile reads a calibration profile from path. If the file omits
// multipliers (all zero), they are derived as targetRms/avg per string
// using the caller's current targetRms parameter row.
func LoadProfile(path string, targetRms [NumStrings]float64) (ProfileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProfileFile{}, err
	}
	var pf ProfileFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return ProfileFile{}, err
	}

	allZero := true
	for _, m := range pf.Multipliers {
		if m != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		for s := range pf.Multipliers {
			pf.Multipliers[s] = Multiplier(targetRms[s], pf.Avg[s])
		}
	}
	return pf, nil
}
