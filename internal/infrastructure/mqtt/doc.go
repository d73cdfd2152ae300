// Package mqtt is the controller's optional broker connection, built on
// paho.mqtt.golang.
//
// Traffic, all under the avx/ root (see Topics):
//
//	avx/naming/<name>                    retained name registrations (naming backend)
//	avx/command/<bridge>/<device>        bridged device invocations
//	avx/state/<bridge>/<device>          bridge state, relayed to WebSocket clients
//	avx/controller/<client_id>/status    retained presence, with a last will
//	avx/controller/event/<action>        audit events
//
// The client reconnects by itself and replays its subscriptions. Handlers
// run concurrently and must not assume delivery order.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
//	defer cancel()
//	uri, err := client.ReadRetained(ctx, mqtt.Topics{}.Naming("avx.controller.rack-2"))
package mqtt
