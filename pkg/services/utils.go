package services

import (
	"time"
)

// Helpers to safely pull typed values out of Timeplus query result rows.

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key].(bool); ok {
		return val
	}
	return false
}

func getTime(data map[string]interface{}, key string) time.Time {
	switch v := data[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	}
	return time.Time{}
}

// getTimePtr returns nil for NULL or zero timestamps
func getTimePtr(data map[string]interface{}, key string) *time.Time {
	t := getTime(data, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func getIntPtr(data map[string]interface{}, key string) *int {
	switch v := data[key].(type) {
	case *int32:
		if v != nil {
			n := int(*v)
			return &n
		}
	case int32:
		n := int(v)
		return &n
	case int64:
		n := int(v)
		return &n
	case *int64:
		if v != nil {
			n := int(*v)
			return &n
		}
	}
	return nil
}

func getFloat(data map[string]interface{}, key string) float64 {
	if v := getFloatPtr(data, key); v != nil {
		return *v
	}
	return 0
}

func getFloatPtr(data map[string]interface{}, key string) *float64 {
	switch v := data[key].(type) {
	case *float64:
		return v
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	}
	return nil
}
