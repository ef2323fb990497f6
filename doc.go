// Package mqttier is an MQTT 5.0 client engine.
//
// This package implements the client side of the MQTT Version 5.0 OASIS
// Standard:
// https://docs.oasis-open.org/mqtt/mqtt/v5.0/mqtt-v5.0.html
//
// # Features
//
//   - Codec for all 15 control packet types and the full property set
//   - QoS 0, 1 and 2 delivery with DUP retransmission and session resume
//   - Publishes and subscriptions queued while disconnected
//   - Subscription identifiers routing messages to per-subscription handlers
//   - Request/response with correlation data and timeouts
//   - Reconnect with exponential backoff and round-robin server lists
//   - Online presence through a retained status topic and the will
//   - Enhanced authentication, including SCRAM-SHA-1/256/512
//   - Transport: TCP, TLS, WebSocket, Unix sockets, QUIC, HTTP/SOCKS5 proxies
//
// All connection state is owned by a single event loop goroutine; public
// methods hand work to it and wait on the result.
//
// # Client
//
//	client, err := mqttier.Dial(
//	    mqttier.WithServers("tcp://localhost:1883"),
//	    mqttier.WithClientID("sensor-1"),
//	    mqttier.WithPresence(),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Publishing blocks until the delivery completes for the requested QoS:
//
//	err = client.Publish(ctx, &mqttier.Message{
//	    Topic:   "sensors/temperature",
//	    Payload: []byte("21.5"),
//	    QoS:     1,
//	})
//
// Subscriptions take a Handler; HandlerFunc adapts a plain function:
//
//	sub, err := client.Subscribe(ctx, "sensors/+", 1, mqttier.HandlerFunc(func(msg *mqttier.Message) {
//	    fmt.Println(msg.Topic, string(msg.Payload))
//	}))
//
// # Request/response
//
//	token, err := client.Request(ctx, &mqttier.Message{Topic: "svc/time"}, "", nil)
//	if err != nil {
//	    return err
//	}
//	if err := token.Wait(ctx); err != nil {
//	    return err
//	}
//	reply := token.Message()
//
// The extensions/rpc package builds a responder on top of Subscribe.
//
// # Errors and events
//
// Failures carry typed errors that work with errors.Is and errors.As:
// ConnectError, PublishError, PublishTimeoutError, SubscribeError,
// RequestTimeoutError and ConnectionLostError. Lifecycle changes are
// delivered to the OnEvent handler as ConnectedEvent, DisconnectError and
// ReconnectEvent values.
//
// # Packets
//
// ReadPacket and WritePacket encode packets on any io.Reader or io.Writer:
//
//	pkt, n, err := mqttier.ReadPacket(conn, maxPacketSize)
//	n, err := mqttier.WritePacket(conn, packet, maxPacketSize)
package mqttier
