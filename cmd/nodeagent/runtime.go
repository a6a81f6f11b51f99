package main

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func numCPU() int { return runtime.NumCPU() }

func promDefaultRegisterer() prometheus.Registerer { return prometheus.DefaultRegisterer }
