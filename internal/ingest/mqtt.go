package ingest

import (
	"context"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"zonewatch/internal/config"
	"zonewatch/internal/model"
)

const sourceMQTT = "mqtt"

// StartMQTT subscribes to the configured topic. The subscription is made
// from the connect handler so it survives automatic reconnects.
func StartMQTT(ctx context.Context, cfg *config.Manager, out chan<- model.ReadingInput, logger *slog.Logger) {
	current := cfg.Get().Ingest.MQTT
	if !current.Enabled {
		if logger != nil {
			logger.Info("mqtt ingest disabled")
		}
		return
	}
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		handleMQTTPayload(ctx, msg.Payload(), out, logger)
	}
	opts := mqtt.NewClientOptions().
		AddBroker(current.Broker).
		SetClientID(current.ClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(current.Topic, current.QoS, handler)
			token.Wait()
			if err := token.Error(); err != nil && logger != nil {
				logger.Error("mqtt subscribe error", "topic", current.Topic, "err", err)
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			if logger != nil {
				logger.Warn("mqtt connection lost", "err", err)
			}
		})
	if current.Username != "" {
		opts.SetUsername(current.Username)
		opts.SetPassword(current.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		if logger != nil {
			logger.Error("mqtt connect error", "broker", current.Broker, "err", err)
		}
		return
	}
	if logger != nil {
		logger.Info("mqtt ingest enabled", "broker", current.Broker, "topic", current.Topic, "qos", current.QoS)
	}
	go func() {
		<-ctx.Done()
		client.Disconnect(250)
	}()
}

func handleMQTTPayload(ctx context.Context, payload []byte, out chan<- model.ReadingInput, logger *slog.Logger) {
	fields, err := ParsePayload(payload)
	if err != nil {
		parseFailed(sourceMQTT, err, logger)
		return
	}
	if fields == nil {
		return
	}
	deliver(ctx, sourceMQTT, fields, out, logger)
}
