package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetinglight/models"
	"meetinglight/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	host       = flag.String("host", "SIM-PC", "Host name to publish as")
	interval   = flag.Duration("interval", 5*time.Second, "Time between simulated samples")
	toggle     = flag.Float64("toggle", 0.2, "Probability a device flips per sample (0.0-1.0)")
	mqttBroker = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser   = flag.String("user", "", "MQTT username")
	mqttPass   = flag.String("pass", "", "MQTT password")
	remove     = flag.Bool("remove", false, "Remove the simulated device from Home Assistant and exit")
)

// Simulator flips webcam and microphone states at random, the way a
// meeting would on a real desk.
type Simulator struct {
	toggleProbability float64
	state             map[models.Capability]bool
}

func NewSimulator(toggleProbability float64) *Simulator {
	state := make(map[models.Capability]bool)
	for _, c := range models.Capabilities() {
		state[c] = false
	}
	return &Simulator{
		toggleProbability: toggleProbability,
		state:             state,
	}
}

// Sample returns the capabilities whose state changed in this sample
func (s *Simulator) Sample() []models.CapabilityState {
	var changed []models.CapabilityState
	for _, c := range models.Capabilities() {
		if rand.Float64() >= s.toggleProbability {
			continue
		}
		s.state[c] = !s.state[c]
		changed = append(changed, models.CapabilityState{Capability: c, Active: s.state[c]})
	}
	return changed
}

func publish(client mqtt.Client, target models.PublishTarget) error {
	token := client.Publish(target.Topic, target.QoS, target.Retain, target.Payload)
	return mqtt.WaitTokenTimeout(token, 10*time.Second)
}

func main() {
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *interval <= 0 {
		logger.Fatal("Interval must be positive", zap.Duration("interval", *interval))
	}

	logger.Info("Meeting light simulator started",
		zap.String("host", *host),
		zap.Duration("interval", *interval),
		zap.Float64("toggle_probability", *toggle),
		zap.String("mqtt_broker", *mqttBroker),
	)
	logger.Info("Press Ctrl+C to stop gracefully")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(services.ClientID(*host) + "-sim")
	if *mqttUser != "" {
		opts.SetUsername(*mqttUser)
		opts.SetPassword(*mqttPass)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer mqttClient.Disconnect(250)

	if *remove {
		// An empty retained config removes the entity from Home Assistant.
		for _, c := range models.Capabilities() {
			topic := services.DiscoveryTopic(*host, c)
			if err := publish(mqttClient, models.PublishTarget{Topic: topic, Retain: true}); err != nil {
				logger.Error("Failed to clear discovery config", zap.String("topic", topic), zap.Error(err))
			}
		}
		logger.Info("Simulated device removed", zap.String("host", *host))
		return
	}

	targets, err := services.DiscoveryTargets(services.NewDiscoveryDescriptor(*host, models.Capabilities()))
	if err != nil {
		logger.Fatal("Failed to build discovery config", zap.Error(err))
	}
	for _, target := range targets {
		if err := publish(mqttClient, target); err != nil {
			logger.Error("Failed to publish discovery config", zap.String("topic", target.Topic), zap.Error(err))
		}
	}

	sim := NewSimulator(*toggle)
	for _, c := range models.Capabilities() {
		if err := publish(mqttClient, services.StateTarget(*host, c, false)); err != nil {
			logger.Error("Failed to publish initial state", zap.String("capability", string(c)), zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping simulator")
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	changeCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			for _, c := range models.Capabilities() {
				if err := publish(mqttClient, services.StateTarget(*host, c, false)); err != nil {
					logger.Error("Failed to publish final state", zap.String("capability", string(c)), zap.Error(err))
				}
			}
			logger.Info("Shutdown complete",
				zap.Int("state_changes", changeCount),
				zap.Duration("total_uptime", time.Since(startTime)),
			)
			return

		case <-ticker.C:
			for _, change := range sim.Sample() {
				target := services.StateTarget(*host, change.Capability, change.Active)
				if err := publish(mqttClient, target); err != nil {
					logger.Error("Failed to publish state",
						zap.String("topic", target.Topic),
						zap.Error(err))
					continue
				}
				changeCount++
				logger.Info("Published simulated state",
					zap.String("topic", target.Topic),
					zap.ByteString("payload", target.Payload))
			}
		}
	}
}
