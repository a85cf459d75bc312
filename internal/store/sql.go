package store

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (uuid,
                      start_time,
                      filter,
                      source,
                      config)
VALUES (?, ?, ?, ?, ?)`

	selectSessionsSQL = `
SELECT 
    id, 
    uuid, 
    start_time, 
    filter, 
    source, 
    config 
FROM sessions
ORDER BY start_time, id`

	insertFusedSQL = `
INSERT INTO fused_samples (session_id,
                           timestamp,
                           relative_time,
                           accel_x,
                           accel_y,
                           accel_z,
                           gyro_x,
                           gyro_y,
                           gyro_z,
                           altitude,
                           roll,
                           pitch,
                           yaw,
                           comp_accel_x,
                           comp_accel_y,
                           comp_accel_z,
                           filter)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFusedSQL = `
SELECT 
    timestamp, 
    relative_time, 
    accel_x, 
    accel_y, 
    accel_z, 
    gyro_x, 
    gyro_y, 
    gyro_z, 
    altitude, 
    roll, 
    pitch, 
    yaw, 
    comp_accel_x, 
    comp_accel_y, 
    comp_accel_z, 
    filter 
FROM fused_samples 
WHERE 
    session_id = ?
ORDER BY id`
)

//go:embed schema.sql
var schemaSQL string
