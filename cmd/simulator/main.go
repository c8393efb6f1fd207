package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultSubjectCount = 3
	defaultIntervalMs   = 2000
)

// reading is the ingestion API request body
type reading struct {
	Kind      string `json:"kind"`
	HeartRate int    `json:"heartRate,omitempty"`
	Systolic  int    `json:"systolic,omitempty"`
	Diastolic int    `json:"diastolic,omitempty"`
	Source    string `json:"source"`
}

// Simulated vitals feed: posts mostly-normal heart-rate and
// blood-pressure readings for a handful of subjects, with occasional
// anomalies to exercise the alerting and escalation paths.
func main() {
	rand.Seed(time.Now().UnixNano())

	engineURL := getEnv("ALERT_ENGINE_URL", "http://localhost:8080")
	subjectCount, _ := strconv.Atoi(getEnv("SUBJECT_COUNT", fmt.Sprintf("%d", defaultSubjectCount)))
	intervalMs, _ := strconv.Atoi(getEnv("INTERVAL_MS", fmt.Sprintf("%d", defaultIntervalMs)))

	client := &http.Client{Timeout: 5 * time.Second}

	logrus.Infof("Simulating vitals for %d subjects against %s every %d ms",
		subjectCount, engineURL, intervalMs)

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := 1; i <= subjectCount; i++ {
			subjectID := fmt.Sprintf("subject_%d", i)

			r := normalHeartRate()
			if rand.Intn(2) == 0 {
				r = normalBloodPressure()
			}
			// Occasionally push an anomaly to trigger alerts
			if rand.Intn(25) == 0 {
				r = anomaly()
				logrus.Warnf("Sending anomalous %s reading for %s: %+v", r.Kind, subjectID, r)
			}

			if err := postReading(client, engineURL, subjectID, r); err != nil {
				logrus.Errorf("Error sending reading for %s: %v", subjectID, err)
			}
		}
	}
}

func normalHeartRate() reading {
	return reading{
		Kind:      "heart_rate",
		HeartRate: 60 + rand.Intn(55), // 60..114
		Source:    "sensor",
	}
}

func normalBloodPressure() reading {
	return reading{
		Kind:      "blood_pressure",
		Systolic:  100 + rand.Intn(35), // 100..134
		Diastolic: 65 + rand.Intn(20),  // 65..84
		Source:    "sensor",
	}
}

func anomaly() reading {
	switch rand.Intn(4) {
	case 0:
		return reading{Kind: "heart_rate", HeartRate: 30 + rand.Intn(10), Source: "sensor"}
	case 1:
		return reading{Kind: "heart_rate", HeartRate: 181 + rand.Intn(30), Source: "sensor"}
	case 2:
		return reading{Kind: "blood_pressure", Systolic: 185 + rand.Intn(30), Diastolic: 122 + rand.Intn(15), Source: "sensor"}
	default:
		return reading{Kind: "blood_pressure", Systolic: 70 + rand.Intn(9), Diastolic: 40 + rand.Intn(9), Source: "sensor"}
	}
}

func postReading(client *http.Client, engineURL, subjectID string, r reading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/subjects/%s/readings", engineURL, subjectID)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ingestion returned status %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusCreated {
		logrus.Infof("Reading for %s created an alert", subjectID)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
