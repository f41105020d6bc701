// Package database provides the command layer beneath the repository:
// entity metadata, parameter kinds and binding, commands and connections,
// SQL dialects, row materialization, command hooks, SQL scripts, and the
// Bun-backed database manager with its configuration and logging.
package database
