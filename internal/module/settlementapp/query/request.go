package query

type GetManyOrderRequest struct {
	Page int64 `validate:"required,gte=1"`
	Size int64 `validate:"required,gte=1,lte=100"`
}

type GetManyTicketRequest struct {
	Page int64 `validate:"required,gte=1"`
	Size int64 `validate:"required,gte=1,lte=100"`
}
