package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geofleet/trackd/pkg/file"
	"github.com/geofleet/trackd/pkg/gps"
	"github.com/geofleet/trackd/pkg/identity"
	"github.com/geofleet/trackd/pkg/mqtt"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "base URL of the tracking server")
	deviceToken := flag.String("token", "", "device token expected by the server")
	deviceFlag := flag.String("device", "", "device identifier (defaults to the identity file)")
	identityFile := flag.String("identity-file", ".trackersim.json", "path of the persisted device identity")
	interval := flag.Duration("interval", 5*time.Second, "delay between position reports")
	mode := flag.String("mode", "http", "transport to report over: http or mqtt")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topicPrefix := flag.String("topic", "track", "MQTT topic prefix, the device ID is appended")
	qos := flag.Int("qos", 1, "MQTT quality of service level")
	caCert := flag.String("ca-cert", "", "CA certificate for TLS MQTT connections")
	serialPort := flag.String("serial", "", "serial port of a GPS receiver (synthetic route when empty)")
	baudRate := flag.Int("baud", 9600, "serial port baud rate")
	lat := flag.Float64("lat", 52.5200, "synthetic route center latitude")
	lng := flag.Float64("lng", 13.4050, "synthetic route center longitude")
	radius := flag.Float64("radius", 2.0, "synthetic route radius in kilometers")
	speed := flag.Float64("speed", 40.0, "synthetic route speed in km/h")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fileClient := file.NewFileService()

	deviceID, err := resolveDeviceID(*deviceFlag, *identityFile, fileClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to resolve device identity")
	}

	var provider gps.Provider
	if *serialPort != "" {
		provider = gps.NewSerialNMEAProvider(*serialPort, *baudRate)
	} else {
		provider = gps.NewRouteProvider(*lat, *lng, *radius, *speed, nil)
	}
	defer provider.Close()

	var report func(payload []byte) error
	switch *mode {
	case "http":
		client := &http.Client{Timeout: 10 * time.Second}
		endpoint := strings.TrimRight(*serverURL, "/") + "/api/track"
		report = func(payload []byte) error {
			return postPosition(client, endpoint, *deviceToken, payload)
		}
	case "mqtt":
		mqttClient := mqtt.NewMqttService(fileClient)
		if err := mqttClient.Initialize(*broker, "trackersim-"+deviceID, *caCert); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
		}
		defer mqttClient.Disconnect(250)

		topic := *topicPrefix + "/" + deviceID
		report = func(payload []byte) error {
			token := mqttClient.Publish(topic, byte(*qos), false, payload)
			if token.Wait() && token.Error() != nil {
				return token.Error()
			}
			return nil
		}
	default:
		logger.Fatal().Str("mode", *mode).Msg("Unknown transport mode")
	}

	logger.Info().
		Str("device_id", deviceID).
		Str("mode", *mode).
		Dur("interval", *interval).
		Msg("Starting position simulator")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		if err := reportOnce(provider, deviceID, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to report position")
		}

		select {
		case <-stop:
			logger.Info().Msg("Shutting down position simulator")
			return
		case <-ticker.C:
		}
	}
}

// resolveDeviceID returns the device ID from the flag when given, otherwise
// from the identity file, generating and persisting a fresh one on first run.
func resolveDeviceID(flagID, identityFile string, fileClient file.FileOperations, logger zerolog.Logger) (string, error) {
	if flagID != "" {
		return flagID, nil
	}

	deviceInfo := identity.NewDeviceInfo(identityFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		return "", err
	}
	if id := deviceInfo.GetDeviceID(); id != "" {
		return id, nil
	}

	id := "SIM-" + uuid.NewString()[:8]
	if err := deviceInfo.SaveDeviceID(id); err != nil {
		logger.Warn().Err(err).Str("file", identityFile).Msg("Failed to persist device identity")
	}
	return id, nil
}

// reportOnce reads one fix from the provider and reports it.
func reportOnce(provider gps.Provider, deviceID string, report func([]byte) error) error {
	pos, err := provider.GetPosition()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"device_id": deviceID,
		"lat":       pos.Lat,
		"lng":       pos.Lng,
		"speed":     pos.Speed,
		"heading":   pos.Heading,
		"sats":      pos.Sats,
		"ts":        time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	return report(payload)
}

func postPosition(client *http.Client, endpoint, token string, payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Token", token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)

	return nil
}
