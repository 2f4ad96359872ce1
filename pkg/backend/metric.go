// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package backend

import (
	"encoding/json"
	"math"
	"strconv"
)

// metricValue encodes non finite values as the "NaN", "Infinity" and "-Infinity"
// strings accepted by the MLflow JSON API, finite values stay plain numbers.
type metricValue float64

func (v metricValue) MarshalJSON() ([]byte, error) {
	value := float64(v)
	switch {
	case math.IsNaN(value):
		return []byte(`"NaN"`), nil
	case math.IsInf(value, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(value, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(value)
}

func (v *metricValue) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return err
		}
		*v = metricValue(value)
		return nil
	}

	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*v = metricValue(value)
	return nil
}

// MarshalJSON implements json.Marshaler, see metricValue for non finite values.
func (m Metric) MarshalJSON() ([]byte, error) {
	type plain Metric
	return json.Marshal(struct {
		plain
		Value metricValue `json:"value"`
	}{
		plain: plain(m),
		Value: metricValue(m.Value),
	})
}

// UnmarshalJSON implements json.Unmarshaler, accepting both numbers and the MLflow
// strings for non finite values.
func (m *Metric) UnmarshalJSON(data []byte) error {
	type plain Metric
	decoded := struct {
		*plain
		Value metricValue `json:"value"`
	}{
		plain: (*plain)(m),
	}

	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	m.Value = float64(decoded.Value)
	return nil
}
