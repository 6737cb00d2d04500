// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package services adapts components with their own lifecycle shape to
// suture.Service so they can run under the supervisor tree.
//
// Components that already block in Serve(ctx) (the websocket hub, the MQTT
// subscriber, the embedded NATS server) are added to the tree directly.
package services
