// Package vitals computes derived clinical measures from structured numeric
// fields. Values are recomputed on read; nothing here is persisted.
package vitals

import "math"

// BMICategory labels a body-mass-index value.
type BMICategory string

const (
	BMIUnderweight BMICategory = "underweight"
	BMINormal      BMICategory = "normal"
	BMIOverweight  BMICategory = "overweight"
	BMIObese       BMICategory = "obese"
)

// BMI returns body mass index from weight in kilograms and height in
// centimeters, rounded to one decimal. Returns 0 for non-positive inputs.
func BMI(weightKg, heightCm float64) float64 {
	if weightKg <= 0 || heightCm <= 0 {
		return 0
	}
	heightM := heightCm / 100
	return math.Round(weightKg/(heightM*heightM)*10) / 10
}

// CategorizeBMI maps a BMI value to its WHO category.
func CategorizeBMI(bmi float64) BMICategory {
	switch {
	case bmi < 18.5:
		return BMIUnderweight
	case bmi < 25:
		return BMINormal
	case bmi < 30:
		return BMIOverweight
	default:
		return BMIObese
	}
}

// BPCategory labels a blood pressure reading.
type BPCategory string

const (
	BPNormal       BPCategory = "normal"
	BPElevated     BPCategory = "elevated"
	BPStage1       BPCategory = "hypertension_stage_1"
	BPStage2       BPCategory = "hypertension_stage_2"
	BPCrisis       BPCategory = "hypertensive_crisis"
	BPUnmeasurable BPCategory = "unmeasurable"
)

// CategorizeBP maps a systolic/diastolic reading to the AHA category.
func CategorizeBP(systolic, diastolic int) BPCategory {
	if systolic <= 0 || diastolic <= 0 {
		return BPUnmeasurable
	}
	switch {
	case systolic > 180 || diastolic > 120:
		return BPCrisis
	case systolic >= 140 || diastolic >= 90:
		return BPStage2
	case systolic >= 130 || diastolic >= 80:
		return BPStage1
	case systolic >= 120:
		return BPElevated
	default:
		return BPNormal
	}
}
