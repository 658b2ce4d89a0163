/*
 * Copyright (c) 2024. Anton Starikov -- All Rights Reserved
 *
 * This file is part of MZTRVC project.
 *
 * MZTRVC is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package safe_mqtt

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/antst/mztrvc/internal/logger"
)

const (
	reconnectInterval = 2 * time.Second
	disconnectQuiesce = 250
)

// MqttClient is bridge between our app and MQTT
type MqttClient interface {
	SafePublish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	SafeSubscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	SafeUnsubscribe(topics ...string) mqtt.Token
}

type Options struct {
	URL      string
	ClientID string
	Username string
	Password string
}

var _ MqttClient = (*Client)(nil)

type subscription struct {
	qos      byte
	callback mqtt.MessageHandler
}

// Client is the paho-backed MqttClient. Subscriptions are restored after every
// reconnect.
type Client struct {
	mutex         sync.Mutex
	mqtt          mqtt.Client
	subscriptions map[string]subscription
}

func newClient() *Client {
	return &Client{subscriptions: make(map[string]subscription)}
}

// ClientID builds a broker-unique client id from a stable prefix.
func ClientID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// InitMQTTClient connects and blocks until the broker accepts the session or
// ctx is done.
func InitMQTTClient(ctx context.Context, o Options) (*Client, error) {
	c := newClient()

	opts := mqtt.NewClientOptions().
		AddBroker(o.URL).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectInterval).
		SetOrderMatters(false)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.L().Warnf("Connection to MQTT broker lost: %v", err)
	}

	c.mqtt = mqtt.NewClient(opts)
	if err := connect(ctx, c.mqtt); err != nil {
		return nil, err
	}
	return c, nil
}

func connect(ctx context.Context, client mqtt.Client) error {
	for {
		token := client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		logger.L().Warnf("Connection failed, retrying in %v: %v", reconnectInterval, token.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectInterval):
		}
	}
}

// onConnect restores subscriptions, the broker drops them with a clean session.
func (m *Client) onConnect(client mqtt.Client) {
	or := client.OptionsReader()
	logger.L().Infof("Connected to MQTT broker: %v as %s", or.Servers(), or.ClientID())

	m.mutex.Lock()
	defer m.mutex.Unlock()
	for topic, s := range m.subscriptions {
		client.Subscribe(topic, s.qos, s.callback)
	}
}

func (m *Client) SafePublish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.mqtt.Publish(topic, qos, retained, payload)
}

func (m *Client) SafeSubscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.subscriptions[topic] = subscription{qos: qos, callback: callback}
	return m.mqtt.Subscribe(topic, qos, callback)
}

func (m *Client) SafeUnsubscribe(topics ...string) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, t := range topics {
		delete(m.subscriptions, t)
	}
	return m.mqtt.Unsubscribe(topics...)
}

func (m *Client) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.mqtt.Disconnect(disconnectQuiesce)
}
