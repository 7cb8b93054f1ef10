package ktable

import (
	"github.com/sirupsen/logrus"
)

var plog = logrus.WithField("pkg", "ktable")
