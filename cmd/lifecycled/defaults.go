package main

const (
	defaultMemoryLimit = 16 << 20 // 16 MiB
	defaultFuelLimit   = 10_000_000
	defaultPolicyName  = "strict"
)
