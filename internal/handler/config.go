package handler

import (
	"net/http"

	"github.com/hakola/stageflow/internal"
	"github.com/labstack/echo/v4"
)

func GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, internal.Config)
}

func PostConfig(c echo.Context) error {
	cp := new(ConfigParams)
	if err := c.Bind(cp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid config data")
	}

	config := &internal.Configuration{
		QueueSize:           cp.QueueSize,
		DefaultStageTimeout: internal.NewSecondsDuration(cp.DefaultStageTimeoutSeconds),
		DefaultStepTimeout:  internal.NewSecondsDuration(cp.DefaultStepTimeoutSeconds),
		CloneTimeout:        internal.NewSecondsDuration(cp.CloneTimeoutSeconds),
	}

	if err := internal.UpdateConfiguration(config); err != nil {
		return newError(err,
			http.StatusInternalServerError, "unable to update configuration file")
	}
	return c.JSON(http.StatusOK, config)
}
