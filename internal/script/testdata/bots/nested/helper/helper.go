package helper

const Cooldown = 1500

func Pattern() string { return "Nested" }
