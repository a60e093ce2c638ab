package backoffice

// Resource names
const (
	Branches          = "branches"
	Workshops         = "workshops"
	Factories         = "factories"
	Cashboxes         = "cashboxes"
	Inventories       = "inventories"
	Clothes           = "clothes"
	Orders            = "orders"
	Deliveries        = "deliveries"
	Returns           = "returns"
	Departments       = "departments"
	Roles             = "roles"
	Permissions       = "permissions"
	Employees         = "employees"
	EmployeeCustodies = "employee-custodies"
	ClothesTransfers  = "clothes-transfers"
)

// Custody actions and the statuses they lead to
const (
	ActionReturn  Action = "return"
	ActionLost    Action = "lost"
	ActionDamaged Action = "damaged"

	CustodyAssigned = "assigned"
	CustodyReturned = "returned"
	CustodyLost     = "lost"
	CustodyDamaged  = "damaged"

	StatusField = "status"
)

func resource(name, tag, label string) Resource {
	return Resource{
		Name:            name,
		Tag:             tag,
		Label:           label,
		ReadPermission:  name + ":read",
		WritePermission: name + ":write",
	}
}

// DefaultRegistry returns every resource the back-office manages
func DefaultRegistry() *Registry {
	custodies := resource(EmployeeCustodies, "EMPLOYEE_CUSTODIES_KEY", "عهدة الموظف")
	custodies.Transitions = map[Action]Transition{
		ActionReturn:  {Action: ActionReturn, Segment: "return", Field: StatusField, Status: CustodyReturned, Label: "إرجاع العهدة"},
		ActionLost:    {Action: ActionLost, Segment: "mark-lost", Field: StatusField, Status: CustodyLost, Label: "تسجيل العهدة كمفقودة"},
		ActionDamaged: {Action: ActionDamaged, Segment: "mark-damaged", Field: StatusField, Status: CustodyDamaged, Label: "تسجيل العهدة كتالفة"},
	}

	permissions := resource(Permissions, "PERMISSIONS_KEY", "الصلاحيات")
	permissions.ReadOnly = true

	return NewRegistry(
		resource(Branches, "BRANCHES_KEY", "الفرع"),
		resource(Workshops, "WORKSHOPS_KEY", "الورشة"),
		resource(Factories, "FACTORIES_KEY", "المصنع"),
		resource(Cashboxes, "CASHBOXES_KEY", "الخزنة"),
		resource(Inventories, "INVENTORY_KEY", "المخزون"),
		resource(Clothes, "CLOTHES_KEY", "القطعة"),
		resource(Orders, "ORDERS_KEY", "الطلب"),
		resource(Deliveries, "DELIVERIES_KEY", "التسليم"),
		resource(Returns, "RETURNS_KEY", "المرتجع"),
		resource(Departments, "DEPARTMENTS_KEY", "القسم"),
		resource(Roles, "ROLES_KEY", "الدور"),
		permissions,
		resource(Employees, "EMPLOYEES_KEY", "الموظف"),
		custodies,
		resource(ClothesTransfers, "CLOTHES_TRANSFERS_KEY", "طلب النقل"),
	)
}
