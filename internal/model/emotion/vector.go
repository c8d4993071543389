package emotion

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Axis 表示演员情绪向量中的一个维度。
type Axis string

const (
	Anger    Axis = "anger"
	Disgust  Axis = "disgust"
	Fear     Axis = "fear"
	Joy      Axis = "joy"
	Sadness  Axis = "sadness"
	Surprise Axis = "surprise"
)

const (
	MinIntensity = 0
	MaxIntensity = 100
)

// Axes 返回固定顺序的全部维度。
func Axes() []Axis {
	return []Axis{Anger, Disgust, Fear, Joy, Sadness, Surprise}
}

// Vector 是演员情绪状态，六个维度始终齐全且取值在 [0, 100]。
type Vector struct {
	Anger    int `json:"anger" bson:"anger"`
	Disgust  int `json:"disgust" bson:"disgust"`
	Fear     int `json:"fear" bson:"fear"`
	Joy      int `json:"joy" bson:"joy"`
	Sadness  int `json:"sadness" bson:"sadness"`
	Surprise int `json:"surprise" bson:"surprise"`
}

// Get 读取单个维度。
func (v Vector) Get(axis Axis) int {
	switch axis {
	case Anger:
		return v.Anger
	case Disgust:
		return v.Disgust
	case Fear:
		return v.Fear
	case Joy:
		return v.Joy
	case Sadness:
		return v.Sadness
	case Surprise:
		return v.Surprise
	default:
		return 0
	}
}

// With 返回修改了单个维度后的新向量，结果会被截断到合法范围。
func (v Vector) With(axis Axis, value int) Vector {
	value = clamp(value)
	switch axis {
	case Anger:
		v.Anger = value
	case Disgust:
		v.Disgust = value
	case Fear:
		v.Fear = value
	case Joy:
		v.Joy = value
	case Sadness:
		v.Sadness = value
	case Surprise:
		v.Surprise = value
	}
	return v
}

// Clamp 将所有维度截断到 [0, 100]。
func (v Vector) Clamp() Vector {
	for _, axis := range Axes() {
		v = v.With(axis, v.Get(axis))
	}
	return v
}

// Dominant 返回强度最高的维度，并列时按 Axes 顺序取第一个。
func (v Vector) Dominant() (Axis, int) {
	best, bestValue := Anger, v.Anger
	for _, axis := range Axes()[1:] {
		if value := v.Get(axis); value > bestValue {
			best, bestValue = axis, value
		}
	}
	return best, bestValue
}

// Shift 描述单个维度在两次快照之间的变化。
type Shift struct {
	Axis  Axis
	From  int
	To    int
	Delta int
}

// Delta 比较两次快照，按变化幅度从大到小返回所有发生变化的维度。
func Delta(from, to Vector) []Shift {
	shifts := make([]Shift, 0, len(Axes()))
	for _, axis := range Axes() {
		a, b := from.Get(axis), to.Get(axis)
		if a == b {
			continue
		}
		shifts = append(shifts, Shift{Axis: axis, From: a, To: b, Delta: b - a})
	}
	sort.SliceStable(shifts, func(i, j int) bool {
		return abs(shifts[i].Delta) > abs(shifts[j].Delta)
	})
	return shifts
}

// FromMap 从外部载荷构建向量。每个维度都必须出现，多余的键被忽略，小数四舍五入后截断。
func FromMap(values map[string]float64) (Vector, error) {
	var v Vector
	for _, axis := range Axes() {
		raw, ok := values[string(axis)]
		if !ok {
			return Vector{}, fmt.Errorf("emotion axis %q missing", axis)
		}
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return Vector{}, fmt.Errorf("emotion axis %q has invalid value", axis)
		}
		// 先在浮点域截断，超出 int 范围的值转换后会溢出。
		raw = math.Min(MaxIntensity, math.Max(MinIntensity, math.Round(raw)))
		v = v.With(axis, int(raw))
	}
	return v, nil
}

// UnmarshalJSON 要求六个维度齐全，取值会被截断到合法范围。
func (v *Vector) UnmarshalJSON(data []byte) error {
	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decode emotion vector: %w", err)
	}
	if values == nil {
		return fmt.Errorf("emotion vector is null")
	}
	parsed, err := FromMap(values)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func clamp(value int) int {
	if value < MinIntensity {
		return MinIntensity
	}
	if value > MaxIntensity {
		return MaxIntensity
	}
	return value
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
