//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

package domain

// Platform identifies the video platform a subscription lives on
// ENUM(youtube,peertube,lbry)
type Platform string
